// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/rangebot/subcmds"
	"github.com/bvk/rangebot/subcmds/backpack"
	"github.com/visvasity/cli"
)

func commands() []cli.Command {
	backpackCmds := []cli.Command{
		new(backpack.GetPrice),
		new(backpack.CheckKeys),
	}

	return []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.Range),
		cli.NewGroup("backpack", "View/query backpack exchange directly", backpackCmds...),
	}
}

func main() {
	ctx := cli.WithStdout(context.Background(), os.Stdout)
	if err := cli.Run(ctx, commands(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
