// Package adb reads device logs and runs provisioning commands through the
// Android debug bridge.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mastercactapus/proxscan/collect"
)

const (
	DefaultBin = "adb"
	DefaultTag = "mcuservice"
)

// Client runs adb against one device. The zero value uses the adb binary
// from PATH, the only attached device, and the mcuservice log tag.
type Client struct {
	Bin    string
	Serial string
	Tag    string
	Log    *zap.SugaredLogger
}

var _ collect.Source = (*Client)(nil)

func (c *Client) bin() string {
	if c.Bin == "" {
		return DefaultBin
	}
	return c.Bin
}

func (c *Client) logger() *zap.SugaredLogger {
	if c.Log == nil {
		return zap.NewNop().Sugar()
	}
	return c.Log
}

func (c *Client) args(args ...string) []string {
	if c.Serial == "" {
		return args
	}
	return append([]string{"-s", c.Serial}, args...)
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	args = c.args(args...)
	out, err := exec.CommandContext(ctx, c.bin(), args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", c.bin(), strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

// Clear empties the device log buffer.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.run(ctx, "shell", "logcat", "-c")
	return err
}

// Open starts streaming the device log filtered to the client's tag.
func (c *Client) Open(ctx context.Context) (collect.Stream, error) {
	tag := c.Tag
	if tag == "" {
		tag = DefaultTag
	}
	// The read end is ours rather than cmd.StdoutPipe's, so it stays open
	// until Close has reaped the process and readers are done with it.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("log stream: %w", err)
	}
	cmd := exec.Command(c.bin(), c.args("shell", "logcat", "-s", tag)...)
	cmd.Stdout = pw
	err = cmd.Start()
	pw.Close()
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("start %s: %w", cmd, err)
	}
	c.logger().Debugw("log stream started", "pid", cmd.Process.Pid, "tag", tag)
	return &stream{cmd: cmd, r: pr}, nil
}

type stream struct {
	cmd *exec.Cmd
	r   *os.File

	once sync.Once
	err  error
}

func (s *stream) Read(p []byte) (int, error) { return s.r.Read(p) }

// Close kills the logcat process, reaps it, then closes the read end,
// which unblocks any pending Read. The exit status caused by the kill
// itself is not an error.
func (s *stream) Close() error {
	s.once.Do(func() {
		killErr := s.cmd.Process.Kill()
		err := s.cmd.Wait()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr) && killErr == nil:
		default:
			s.err = fmt.Errorf("wait %s: %w", s.cmd, err)
		}
		s.err = multierr.Append(s.err, s.r.Close())
	})
	return s.err
}
