// Copyright (c) 2025 BVK Chaitanya

// Package config loads the supervisor configuration from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bvk/rangebot/backpack"
	"github.com/bvk/rangebot/monitor"
	"github.com/bvk/rangebot/pushover"
	"github.com/bvk/rangebot/telegram"
	"github.com/bvk/rangebot/worker"
	"github.com/shopspring/decimal"
)

// Environment variable names.
const (
	EnvSymbol          = "SYMBOL"
	EnvAPIKey          = "BACKPACK_API_KEY"
	EnvAPISecret       = "BACKPACK_API_SECRET"
	EnvRangeOffset     = "RANGE_OFFSET"
	EnvWorkerCommand   = "WORKER_COMMAND"
	EnvCheckInterval   = "CHECK_INTERVAL"
	EnvFetchTimeout    = "FETCH_TIMEOUT"
	EnvStopTimeout     = "STOP_TIMEOUT"
	EnvPushoverAppKey  = "PUSHOVER_APP_KEY"
	EnvPushoverUserKey = "PUSHOVER_USER_KEY"
	EnvTelegramToken   = "TELEGRAM_BOT_TOKEN"
	EnvTelegramOwner   = "TELEGRAM_OWNER"
	EnvTelegramOthers  = "TELEGRAM_OTHERS"
)

// DefaultWorkerCommand is the worker executable and its leading arguments
// used when WORKER_COMMAND is not set.
var DefaultWorkerCommand = []string{"node", "dist/app.js"}

type Config struct {
	Symbol string

	Credentials backpack.Credentials

	Offset decimal.Decimal

	WorkerCommand []string

	CheckInterval time.Duration
	FetchTimeout  time.Duration
	StopTimeout   time.Duration

	// Pushover is nil when restart notifications are not configured.
	Pushover *pushover.Keys

	// Telegram is nil when the telegram bot is not configured.
	Telegram *telegram.Secrets
}

// FromEnv reads the configuration using the getenv function, which is
// typically os.Getenv. All problems are reported together.
func FromEnv(getenv func(string) string) (*Config, error) {
	var errs []error
	required := func(name string) string {
		v := strings.TrimSpace(getenv(name))
		if len(v) == 0 {
			errs = append(errs, fmt.Errorf("environment variable %s is required: %w", name, os.ErrInvalid))
		}
		return v
	}
	duration := func(name string, def time.Duration) time.Duration {
		s := strings.TrimSpace(getenv(name))
		if len(s) == 0 {
			return def
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("environment variable %s has invalid duration %q: %w", name, s, errors.Join(os.ErrInvalid, err)))
			return def
		}
		return d
	}

	c := &Config{
		Symbol: required(EnvSymbol),
		Credentials: backpack.Credentials{
			Key:    required(EnvAPIKey),
			Secret: required(EnvAPISecret),
		},
		WorkerCommand: DefaultWorkerCommand,
		CheckInterval: duration(EnvCheckInterval, 5*time.Second),
		FetchTimeout:  duration(EnvFetchTimeout, 10*time.Second),
		StopTimeout:   duration(EnvStopTimeout, 0),
	}

	if s := required(EnvRangeOffset); len(s) != 0 {
		offset, err := decimal.NewFromString(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("environment variable %s has invalid number %q: %w", EnvRangeOffset, s, os.ErrInvalid))
		}
		c.Offset = offset
	}
	if s := strings.Fields(getenv(EnvWorkerCommand)); len(s) != 0 {
		c.WorkerCommand = s
	}

	appKey := strings.TrimSpace(getenv(EnvPushoverAppKey))
	userKey := strings.TrimSpace(getenv(EnvPushoverUserKey))
	if len(appKey) != 0 || len(userKey) != 0 {
		c.Pushover = &pushover.Keys{ApplicationKey: appKey, UserKey: userKey}
	}

	token := strings.TrimSpace(getenv(EnvTelegramToken))
	owner := strings.TrimSpace(getenv(EnvTelegramOwner))
	if len(token) != 0 || len(owner) != 0 {
		c.Telegram = &telegram.Secrets{BotToken: token, OwnerID: owner}
		for _, v := range strings.Split(getenv(EnvTelegramOthers), ",") {
			if v = strings.TrimSpace(v); len(v) != 0 {
				c.Telegram.OtherIDs = append(c.Telegram.OtherIDs, v)
			}
		}
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}
	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

// CredentialsFromEnv reads only the Backpack API credentials using the getenv
// function.
func CredentialsFromEnv(getenv func(string) string) (*backpack.Credentials, error) {
	creds := &backpack.Credentials{
		Key:    strings.TrimSpace(getenv(EnvAPIKey)),
		Secret: strings.TrimSpace(getenv(EnvAPISecret)),
	}
	if err := creds.Check(); err != nil {
		return nil, fmt.Errorf("invalid backpack credentials in %s and %s: %w", EnvAPIKey, EnvAPISecret, err)
	}
	return creds, nil
}

// Check validates the configuration.
func (c *Config) Check() error {
	if len(c.Symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty: %w", os.ErrInvalid)
	}
	if err := c.Credentials.Check(); err != nil {
		return fmt.Errorf("invalid backpack credentials: %w", err)
	}
	if !c.Offset.IsPositive() {
		return fmt.Errorf("range offset %s must be positive: %w", c.Offset, os.ErrInvalid)
	}
	if len(c.WorkerCommand) == 0 {
		return fmt.Errorf("worker command cannot be empty: %w", os.ErrInvalid)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive: %w", os.ErrInvalid)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive: %w", os.ErrInvalid)
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("stop timeout cannot be negative: %w", os.ErrInvalid)
	}
	if c.Pushover != nil {
		if err := c.Pushover.Check(); err != nil {
			return fmt.Errorf("pushover keys must be set together: %w", err)
		}
	}
	if c.Telegram != nil {
		if err := c.Telegram.Check(); err != nil {
			return fmt.Errorf("invalid telegram bot settings: %w", err)
		}
	}
	return nil
}

func (c *Config) MonitorOptions() *monitor.Options {
	return &monitor.Options{
		Interval:     c.CheckInterval,
		FetchTimeout: c.FetchTimeout,
	}
}

func (c *Config) WorkerOptions() *worker.Options {
	return &worker.Options{
		StopTimeout: c.StopTimeout,
	}
}
