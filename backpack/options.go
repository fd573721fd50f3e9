// Copyright (c) 2025 BVK Chaitanya

package backpack

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

var RestURL = url.URL{
	Scheme: "https",
	Host:   "api.backpack.exchange",
}

type Options struct {
	// RestURL overrides the default REST service endpoint. Used by the tests.
	RestURL string

	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// RequestsPerSecond and RequestsBurst configure the client side rate limit.
	RequestsPerSecond float64
	RequestsBurst     int

	// MaxRetries is the number of times a request is retried when server
	// responds with a too-many-requests or bad-gateway status.
	MaxRetries int

	// RetryInterval is the default wait time between retries when server
	// doesn't include a Retry-After header.
	RetryInterval time.Duration

	// SignatureWindow is the validity window for the signed requests.
	SignatureWindow time.Duration
}

func (v *Options) setDefaults() {
	if v.RestURL == "" {
		v.RestURL = RestURL.String()
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 10 * time.Second
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 10
	}
	if v.RequestsBurst == 0 {
		v.RequestsBurst = 1
	}
	if v.MaxRetries == 0 {
		v.MaxRetries = 3
	}
	if v.RetryInterval == 0 {
		v.RetryInterval = time.Second
	}
	if v.SignatureWindow == 0 {
		v.SignatureWindow = 5 * time.Second
	}
}

// Check validates the options.
func (v *Options) Check() error {
	u, err := url.Parse(v.RestURL)
	if err != nil {
		return fmt.Errorf("invalid rest url %q: %w", v.RestURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("rest url %q must use http or https scheme: %w", v.RestURL, os.ErrInvalid)
	}
	if v.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative: %w", os.ErrInvalid)
	}
	if v.SignatureWindow > time.Minute {
		return fmt.Errorf("signature window cannot be more than a minute: %w", os.ErrInvalid)
	}
	return nil
}
