// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/bvk/rangebot/pricerange"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type Range struct {
	offset string
}

func (c *Range) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("range", flag.ContinueOnError)
	fset.StringVar(&c.offset, "offset", "", "half-width of the price range")
	return "range", fset, cli.CmdFunc(c.run)
}

func (c *Range) Purpose() string {
	return "Prints the worker price range for a price"
}

func (c *Range) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (price) argument")
	}
	if len(c.offset) == 0 {
		return fmt.Errorf("range offset flag is required")
	}
	offset, err := decimal.NewFromString(strings.TrimSpace(c.offset))
	if err != nil {
		return fmt.Errorf("could not parse offset %q: %w", c.offset, err)
	}
	r, err := pricerange.Compute(args[0], offset)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.Stdout(ctx), strings.Join(r.Args(), " "))
	return nil
}
