// Copyright (c) 2025 BVK Chaitanya

package cmdutil

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/bvk/rangebot/backpack"
	"github.com/bvk/rangebot/config"
	"github.com/bvk/rangebot/envfile"
)

type EnvFlags struct {
	envFile   string
	noEnvFile bool
}

func (ef *EnvFlags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&ef.envFile, "env-file", ".env", "name of the env file searched in the current directory")
	fset.BoolVar(&ef.noEnvFile, "no-env-file", false, "when true, env file is not loaded")
}

// LoadEnv merges the env file variables into the process environment. Values
// already set in the environment take precedence.
func (ef *EnvFlags) LoadEnv() error {
	if ef.noEnvFile {
		return nil
	}
	fpath, err := envfile.UpdateEnv(ef.envFile, envfile.SearchCurrentDir(false))
	if err != nil {
		return fmt.Errorf("could not load env file %q: %w", ef.envFile, err)
	}
	if len(fpath) != 0 {
		slog.Debug("loaded environment variables", "file", fpath)
	}
	return nil
}

// Config loads the env file and returns the configuration from environment.
func (ef *EnvFlags) Config() (*config.Config, error) {
	if err := ef.LoadEnv(); err != nil {
		return nil, err
	}
	return config.FromEnv(os.Getenv)
}

// Credentials loads the env file and returns the Backpack credentials from
// environment.
func (ef *EnvFlags) Credentials() (*backpack.Credentials, error) {
	if err := ef.LoadEnv(); err != nil {
		return nil, err
	}
	return config.CredentialsFromEnv(os.Getenv)
}
