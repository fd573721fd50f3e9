// Copyright (c) 2025 BVK Chaitanya

package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"maps"
	"os"
	"slices"
	"testing"
	"time"
)

func testEnv(t *testing.T) map[string]string {
	pub, pri, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]string{
		EnvSymbol:      "SOL_USDC",
		EnvAPIKey:      base64.StdEncoding.EncodeToString(pub),
		EnvAPISecret:   base64.StdEncoding.EncodeToString(pri.Seed()),
		EnvRangeOffset: "2.5",
	}
}

func getenv(env map[string]string) func(string) string {
	return func(name string) string { return env[name] }
}

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv(getenv(testEnv(t)))
	if err != nil {
		t.Fatal(err)
	}
	if c.Symbol != "SOL_USDC" || c.Offset.String() != "2.5" {
		t.Fatalf("unexpected config %+v", c)
	}
	if !slices.Equal(c.WorkerCommand, DefaultWorkerCommand) {
		t.Fatalf("worker command is %v, want %v", c.WorkerCommand, DefaultWorkerCommand)
	}
	if c.CheckInterval != 5*time.Second || c.FetchTimeout != 10*time.Second || c.StopTimeout != 0 {
		t.Fatalf("unexpected durations %v %v %v", c.CheckInterval, c.FetchTimeout, c.StopTimeout)
	}
	if c.Pushover != nil || c.Telegram != nil {
		t.Fatalf("notifications must not be configured")
	}
	if opts := c.MonitorOptions(); opts.Interval != c.CheckInterval || opts.FetchTimeout != c.FetchTimeout {
		t.Fatalf("unexpected monitor options %+v", opts)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	env := testEnv(t)
	env[EnvWorkerCommand] = "  ./bin/worker  --verbose "
	env[EnvCheckInterval] = "1m"
	env[EnvFetchTimeout] = "3s"
	env[EnvStopTimeout] = "2s"
	env[EnvPushoverAppKey] = "app"
	env[EnvPushoverUserKey] = "user"
	env[EnvTelegramToken] = "token"
	env[EnvTelegramOwner] = "owner"
	env[EnvTelegramOthers] = " friend1, ,friend2 "

	c, err := FromEnv(getenv(env))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"./bin/worker", "--verbose"}; !slices.Equal(c.WorkerCommand, want) {
		t.Fatalf("worker command is %q, want %q", c.WorkerCommand, want)
	}
	if c.CheckInterval != time.Minute || c.FetchTimeout != 3*time.Second || c.StopTimeout != 2*time.Second {
		t.Fatalf("unexpected durations %v %v %v", c.CheckInterval, c.FetchTimeout, c.StopTimeout)
	}
	if c.Pushover == nil || c.Pushover.ApplicationKey != "app" || c.Pushover.UserKey != "user" {
		t.Fatalf("unexpected pushover keys %+v", c.Pushover)
	}
	if c.Telegram == nil || c.Telegram.BotToken != "token" || c.Telegram.OwnerID != "owner" || !slices.Equal(c.Telegram.OtherIDs, []string{"friend1", "friend2"}) {
		t.Fatalf("unexpected telegram secrets %+v", c.Telegram)
	}
	if opts := c.WorkerOptions(); opts.StopTimeout != 2*time.Second {
		t.Fatalf("unexpected worker options %+v", opts)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	testCases := map[string]func(env map[string]string){
		"missing symbol": func(env map[string]string) { delete(env, EnvSymbol) },
		"missing key":    func(env map[string]string) { delete(env, EnvAPIKey) },
		"missing secret": func(env map[string]string) { env[EnvAPISecret] = " " },
		"bad secret":     func(env map[string]string) { env[EnvAPISecret] = "not-base64!" },
		"missing offset": func(env map[string]string) { delete(env, EnvRangeOffset) },
		"bad offset":     func(env map[string]string) { env[EnvRangeOffset] = "fifty" },
		"zero offset":    func(env map[string]string) { env[EnvRangeOffset] = "0" },
		"negative":       func(env map[string]string) { env[EnvRangeOffset] = "-1" },
		"bad interval":   func(env map[string]string) { env[EnvCheckInterval] = "5" },
		"zero interval":  func(env map[string]string) { env[EnvCheckInterval] = "0s" },
		"bad timeout":    func(env map[string]string) { env[EnvFetchTimeout] = "soon" },
		"negative stop":  func(env map[string]string) { env[EnvStopTimeout] = "-1s" },
		"half pushover":  func(env map[string]string) { env[EnvPushoverAppKey] = "app" },
		"no tg owner":    func(env map[string]string) { env[EnvTelegramToken] = "token" },
	}

	for _, name := range slices.Sorted(maps.Keys(testCases)) {
		env := testEnv(t)
		testCases[name](env)
		if _, err := FromEnv(getenv(env)); !errors.Is(err, os.ErrInvalid) {
			t.Errorf("%s: want %v, got %v", name, os.ErrInvalid, err)
		}
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	env := testEnv(t)
	delete(env, EnvSymbol)
	delete(env, EnvRangeOffset)

	creds, err := CredentialsFromEnv(getenv(env))
	if err != nil {
		t.Fatal(err)
	}
	if creds.Key != env[EnvAPIKey] || creds.Secret != env[EnvAPISecret] {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	delete(env, EnvAPISecret)
	if _, err := CredentialsFromEnv(getenv(env)); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want %v, got %v", os.ErrInvalid, err)
	}
}
