package scan

import (
	"errors"
	"fmt"
	"time"
)

// Policy selects what happens when a position yields no usable batch.
type Policy string

const (
	// PolicyAbort stops the run at the first failed collection.
	PolicyAbort Policy = "abort"
	// PolicySkip records a gap point and moves on.
	PolicySkip Policy = "skip"
)

// Placement is an absolute axis position applied before scanning.
type Placement struct {
	Axis     string  `json:"axis" yaml:"axis"`
	Position float64 `json:"position" yaml:"position"`
}

// Config is everything a Sequencer needs to know about one run.
type Config struct {
	// ScanAxis is advanced by Step between collections.
	ScanAxis string
	// Home lists axes to home, in order.
	Home  []string
	Start []Placement

	Step       float64
	Iterations int

	Samples       int
	SampleTimeout time.Duration
	OnFailure     Policy

	MountPrompt string
	DonePrompt  string
}

func (c Config) withDefaults() Config {
	if c.OnFailure == "" {
		c.OnFailure = PolicyAbort
	}
	if c.MountPrompt == "" {
		c.MountPrompt = "please mount the glass"
	}
	if c.DonePrompt == "" {
		c.DonePrompt = "test complete!"
	}
	return c
}

func (c Config) Validate() error {
	var errs []error
	if c.ScanAxis == "" {
		errs = append(errs, errors.New("scan axis is required"))
	}
	if c.Step == 0 {
		errs = append(errs, errors.New("step must be non-zero"))
	}
	if c.Iterations < 0 {
		errs = append(errs, fmt.Errorf("iterations must not be negative, got %d", c.Iterations))
	}
	if c.Samples < 1 {
		errs = append(errs, fmt.Errorf("samples must be at least 1, got %d", c.Samples))
	}
	if c.SampleTimeout < 0 {
		errs = append(errs, errors.New("sample timeout must not be negative"))
	}
	switch c.OnFailure {
	case "", PolicyAbort, PolicySkip:
	default:
		errs = append(errs, fmt.Errorf("unknown failure policy %q", c.OnFailure))
	}
	return errors.Join(errs...)
}

// axisNames returns every axis the configuration refers to.
func (c Config) axisNames() []string {
	names := append([]string{c.ScanAxis}, c.Home...)
	for _, p := range c.Start {
		names = append(names, p.Axis)
	}
	return names
}
