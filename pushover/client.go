// Copyright (c) 2023 BVK Chaitanya

// Package pushover sends push notifications through the pushover.net
// messages API.
package pushover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// MessagesURL is the default pushover messages API endpoint.
var MessagesURL = &url.URL{
	Scheme: "https",
	Host:   "api.pushover.net",
	Path:   "/1/messages.json",
}

type Options struct {
	// MessagesURL overrides the messages API endpoint.
	MessagesURL *url.URL

	// Timeout bounds a single send request.
	Timeout time.Duration
}

func (v *Options) setDefaults() {
	if v.MessagesURL == nil {
		v.MessagesURL = MessagesURL
	}
	if v.Timeout == 0 {
		v.Timeout = 30 * time.Second
	}
}

type Client struct {
	opts Options

	token string
	user  string

	httpClient *http.Client
}

type message struct {
	Token     string `json:"token"`
	User      string `json:"user"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type response struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

func New(keys *Keys, opts *Options) (*Client, error) {
	if err := keys.Check(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	c := &Client{
		opts:       *opts,
		token:      keys.ApplicationKey,
		user:       keys.UserKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
	return c, nil
}

// SendMessage sends a message without a title.
func (c *Client) SendMessage(ctx context.Context, at time.Time, msg string) error {
	return c.Send(ctx, at, "", msg)
}

// Send sends a message with an optional title. Message time is set to the
// input timestamp.
func (c *Client) Send(ctx context.Context, at time.Time, title, msg string) error {
	body, err := json.Marshal(&message{
		Token:     c.token,
		User:      c.user,
		Title:     title,
		Message:   msg,
		Timestamp: at.Unix(),
	})
	if err != nil {
		return fmt.Errorf("could not encode pushover message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.MessagesURL.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not send pushover message: %w", err)
	}
	defer resp.Body.Close()

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("could not decode pushover response (http status %d): %w", resp.StatusCode, err)
	}
	if r.Status == 1 {
		return nil
	}
	errs := []error{fmt.Errorf("pushover rejected message %q with http status %d", r.Request, resp.StatusCode)}
	for _, e := range r.Errors {
		errs = append(errs, errors.New(e))
	}
	return errors.Join(errs...)
}
