package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Provision elevates adbd to root and then runs each command through the
// host shell, in order. The first failing command stops provisioning.
func (c *Client) Provision(ctx context.Context, cmds []string) error {
	log := c.logger()

	log.Info("adb root")
	out, err := c.run(ctx, "root")
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	log.Debug(string(bytes.TrimSpace(out)))

	for i, line := range cmds {
		log.Info(line)
		out, err := exec.CommandContext(ctx, "sh", "-c", line).CombinedOutput()
		log.Debug(string(bytes.TrimSpace(out)))
		if err != nil {
			return fmt.Errorf("provision step %d %q: %w: %s", i+1, line, err, bytes.TrimSpace(out))
		}
	}
	return nil
}
