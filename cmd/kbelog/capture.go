package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbe-tools/kbelog/cmd/kbelog/commands"
)

func captureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Inspect protocol capture files",
		Long: `Inspect capture files written with --capture.

A capture records every byte exchanged with the logger, each command
sent or received, and connection state changes.`,
	}

	cmd.AddCommand(
		captureViewCmd(),
		captureStatsCmd(),
		captureExportCmd(),
		captureFilterCmd(),
	)

	return cmd
}

func bindFilterFlags(cmd *cobra.Command, opts *commands.FilterOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	f.StringVar(&opts.TimeStart, "time-start", "", "Only events at or after this RFC3339 time")
	f.StringVar(&opts.TimeEnd, "time-end", "", "Only events at or before this RFC3339 time")
	f.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&opts.Category, "category", "", "Filter by category (raw, command, state, error)")
	f.StringVar(&opts.Command, "command", "", "Filter by command name or id (e.g. write-log, 704)")
}

func captureViewCmd() *cobra.Command {
	var opts commands.FilterOptions

	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "View a capture in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := commands.BuildFilter(opts)
			if err != nil {
				return err
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	bindFilterFlags(cmd, &opts)

	return cmd
}

func captureStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Show statistics about a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}

func captureExportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export a capture to JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunExport(args[0], format, output)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func captureFilterCmd() *cobra.Command {
	var (
		opts   commands.FilterOptions
		output string
	)

	cmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Write the matching events to a new capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("output file required (-o)")
			}
			n, err := commands.RunFilter(args[0], output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d events to %s\n", n, output)
			return nil
		},
	}
	bindFilterFlags(cmd, &opts)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (required)")

	return cmd
}
