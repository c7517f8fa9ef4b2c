// Command kbelog watches a KBEngine logger service.
//
// Usage:
//
//	kbelog <command> [flags]
//
// Commands:
//
//	watch     Register with the logger and stream log lines to the sinks
//	send      Write one log record to the logger
//	console   Interactive session: view logs and send records
//	discover  Find logger services via mDNS, or announce one
//	capture   Inspect protocol capture files
//	version   Print version information
//
// Examples:
//
//	# Stream all logs to stdout
//	kbelog watch --host 10.0.0.5 --uid 1000
//
//	# Drain what is pending and exit
//	kbelog watch --once
//
//	# Send a warning
//	kbelog send WARNING "disk almost full"
//
//	# Show capture statistics
//	kbelog capture stats session.kcap
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "kbelog",
		Short: "KBEngine logger watcher",
		Long: `kbelog connects to a KBEngine logger service as a log watcher.

It registers for every log type and component, receives log lines as
they are written, and forwards them to stdout, rotating files, NATS or
a Redis stream. It can also write records into the logger and inspect
protocol capture files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		watchCmd(opts),
		sendCmd(opts),
		consoleCmd(opts),
		discoverCmd(opts),
		captureCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return
			}
			fmt.Fprintf(out, "kbelog %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
