// Copyright (c) 2025 BVK Chaitanya

package worker

import (
	"fmt"
	"io"
	"os"
	"time"
)

type Options struct {
	// StopTimeout when non-zero makes the Start operation wait up to this
	// duration for the previous worker to exit after the termination signal,
	// before it is killed forcefully. Zero value doesn't wait for the previous
	// worker to exit at all.
	StopTimeout time.Duration

	// CloseTimeout is the maximum time to wait for the workers to exit after
	// the termination signal when supervisor is closed.
	CloseTimeout time.Duration

	// Stdout and Stderr receive the worker process output. Workers inherit
	// the supervisor's standard output and error by default.
	Stdout io.Writer
	Stderr io.Writer
}

func (v *Options) setDefaults() {
	if v.CloseTimeout == 0 {
		v.CloseTimeout = 5 * time.Second
	}
	if v.Stdout == nil {
		v.Stdout = os.Stdout
	}
	if v.Stderr == nil {
		v.Stderr = os.Stderr
	}
}

// Check validates the options.
func (v *Options) Check() error {
	if v.StopTimeout < 0 {
		return fmt.Errorf("stop timeout cannot be negative: %w", os.ErrInvalid)
	}
	if v.CloseTimeout < 0 {
		return fmt.Errorf("close timeout cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
