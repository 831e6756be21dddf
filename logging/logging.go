// Package logging builds the console and file loggers used by proxscan.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Name of the test; the log file is <Dir>/<Name>.log.
	Name string
	Dir  string

	// Debug lowers the console level to debug. The file always gets
	// debug output.
	Debug bool

	// Console defaults to stderr.
	Console io.Writer
}

func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New returns a logger writing to the console and to the test's log file,
// plus a function that flushes and closes the file.
func New(opt Options) (*zap.SugaredLogger, func() error, error) {
	if opt.Console == nil {
		opt.Console = os.Stderr
	}
	if opt.Dir == "" {
		opt.Dir = "."
	}
	if err := os.MkdirAll(opt.Dir, 0o755); err != nil {
		return nil, nil, err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opt.Dir, opt.Name+".log"),
		MaxSize:    100,
		MaxBackups: 5,
	}

	consoleLevel := zap.InfoLevel
	if opt.Debug {
		consoleLevel = zap.DebugLevel
	}

	consoleEnc := EncoderConfig()
	consoleEnc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if f, ok := opt.Console.(*os.File); !ok || !isTerminal(f) {
		consoleEnc.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.AddSync(opt.Console), consoleLevel),
		zapcore.NewCore(zapcore.NewConsoleEncoder(EncoderConfig()), zapcore.AddSync(file), zap.DebugLevel),
	)
	l := zap.New(core, zap.AddCaller()).Named(opt.Name)

	closeFn := func() error {
		_ = l.Sync()
		return file.Close()
	}
	return l.Sugar(), closeFn, nil
}

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
