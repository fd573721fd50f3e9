// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bvk/rangebot/api"
	"github.com/bvk/rangebot/subcmds/cmdutil"
	"github.com/olekukonko/tablewriter"
	"github.com/visvasity/cli"
)

type Status struct {
	cmdutil.ClientFlags

	format string
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.format, "format", "table", "output format, one of table|json")
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) Purpose() string {
	return "Prints the status of a running supervisor"
}

func (c *Status) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}

	resp, err := cmdutil.Get[api.StatusResponse](ctx, &c.ClientFlags, api.StatusPath)
	if err != nil {
		return fmt.Errorf("could not get supervisor status: %w", err)
	}

	switch c.format {
	case "json":
		js, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintf(cli.Stdout(ctx), "%s\n", js)
		return nil
	case "table":
		table := tablewriter.NewWriter(cli.Stdout(ctx))
		table.Header("Property", "Value")
		for _, row := range statusRows(resp) {
			table.Append([]string{row[0], row[1]})
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported output format %q", c.format)
	}
}

// printStatus writes the supervisor status as plain "name: value" lines,
// which is readable in chat messages.
func printStatus(w io.Writer, resp *api.StatusResponse) error {
	for _, row := range statusRows(resp) {
		if _, err := fmt.Fprintf(w, "%s: %s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return nil
}

func statusRows(resp *api.StatusResponse) [][2]string {
	rows := [][2]string{
		{"Supervisor PID", strconv.Itoa(resp.PID)},
		{"Symbol", resp.Symbol},
		{"Phase", resp.Phase},
		{"Offset", resp.Offset.String()},
		{"Range", resp.Lower.String() + " ~ " + resp.Upper.String()},
		{"Last Price", resp.LastPrice.String()},
	}
	if !resp.LastCheck.IsZero() {
		ago := time.Since(resp.LastCheck).Round(time.Second)
		rows = append(rows, [2]string{"Last Check", fmt.Sprintf("%s (%s ago)", resp.LastCheck.Format(time.RFC3339), ago)})
	}
	rows = append(rows, [2]string{"Restarts", strconv.Itoa(resp.Restarts)})

	ws := resp.Worker
	if ws == nil {
		return rows
	}
	rows = append(rows,
		[2]string{"Worker", ws.ID},
		[2]string{"Worker PID", strconv.Itoa(ws.PID)},
		[2]string{"Worker Args", strings.Join(ws.Args, " ")},
		[2]string{"Worker Uptime", time.Since(ws.StartTime).Round(time.Second).String()},
	)
	if len(ws.StatsError) != 0 {
		return append(rows, [2]string{"Worker Stats", ws.StatsError})
	}
	return append(rows,
		[2]string{"Worker Running", strconv.FormatBool(ws.Running)},
		[2]string{"Worker RSS", strconv.FormatUint(ws.RSS, 10)},
		[2]string{"Worker CPU", fmt.Sprintf("%.2f%%", ws.CPUPercent)},
	)
}
