// Copyright (c) 2025 BVK Chaitanya

package backpack

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/bvk/rangebot/backpack"
	"github.com/bvk/rangebot/pricerange"
	"github.com/visvasity/cli"
)

type GetPrice struct {
	restURL string
}

func (c *GetPrice) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("get-price", flag.ContinueOnError)
	fset.StringVar(&c.restURL, "rest-url", backpack.RestURL.String(), "base url for the backpack rest api")
	return "get-price", fset, cli.CmdFunc(c.run)
}

func (c *GetPrice) Purpose() string {
	return "Prints the last traded price for one or more symbols"
}

func (c *GetPrice) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("this command takes one or more (symbol) arguments")
	}

	client, err := backpack.New(nil /* creds */, &backpack.Options{RestURL: c.restURL})
	if err != nil {
		return err
	}
	defer client.Close()

	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 0, 1, ' ', 0)
	for _, symbol := range args {
		raw, err := client.LastPrice(ctx, symbol)
		if err != nil {
			return fmt.Errorf("could not get last price for %q: %w", symbol, err)
		}
		if _, err := pricerange.ParsePrice(raw); err != nil {
			fmt.Fprintf(tw, "%s\t%q\t(invalid)\n", symbol, raw)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", symbol, raw)
	}
	return tw.Flush()
}
