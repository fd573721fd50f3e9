// Copyright (c) 2025 BVK Chaitanya

package monitor

import (
	"fmt"
	"os"
	"time"
)

type Options struct {
	// Interval is the sleep duration between two price checks.
	Interval time.Duration

	// FetchTimeout bounds the time spent in fetching the price. A fetch that
	// takes longer is treated as a failed fetch.
	FetchTimeout time.Duration
}

func (v *Options) setDefaults() {
	if v.Interval == 0 {
		v.Interval = 5 * time.Second
	}
	if v.FetchTimeout == 0 {
		v.FetchTimeout = 10 * time.Second
	}
}

// Check validates the options.
func (v *Options) Check() error {
	if v.Interval < 0 {
		return fmt.Errorf("check interval cannot be negative: %w", os.ErrInvalid)
	}
	if v.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
