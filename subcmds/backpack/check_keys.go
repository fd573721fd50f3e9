// Copyright (c) 2025 BVK Chaitanya

package backpack

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/bvk/rangebot/backpack"
	"github.com/bvk/rangebot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type CheckKeys struct {
	cmdutil.EnvFlags

	restURL string
}

func (c *CheckKeys) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("check-keys", flag.ContinueOnError)
	c.EnvFlags.SetFlags(fset)
	fset.StringVar(&c.restURL, "rest-url", backpack.RestURL.String(), "base url for the backpack rest api")
	return "check-keys", fset, cli.CmdFunc(c.run)
}

func (c *CheckKeys) Purpose() string {
	return "Verifies the configured API keys with a signed request"
}

func (c *CheckKeys) Description() string {
	return `

Command "check-keys" reads the BACKPACK_API_KEY and BACKPACK_API_SECRET values
from the environment (or the .env file) and fetches the account balances with
a signed request. Account balances are printed on success.

`
}

func (c *CheckKeys) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}

	creds, err := c.EnvFlags.Credentials()
	if err != nil {
		return err
	}
	client, err := backpack.New(creds, &backpack.Options{RestURL: c.restURL})
	if err != nil {
		return err
	}
	defer client.Close()

	balances, err := client.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("could not verify api keys: %w", err)
	}

	fmt.Printf("API keys are valid\n")
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Asset\tAvailable\tLocked\tStaked\t\n")
	for _, asset := range slices.Sorted(maps.Keys(balances)) {
		b := balances[asset]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", asset, b.Available, b.Locked, b.Staked)
	}
	return tw.Flush()
}
