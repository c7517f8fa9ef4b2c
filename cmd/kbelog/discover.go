package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbe-tools/kbelog/pkg/discovery"
)

func discoverCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout time.Duration
		iface   string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find logger services via mDNS",
		Long: fmt.Sprintf(`Browse the local network for %s services and list them.`,
			discovery.ServiceType),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, stderr)

			if !cmd.Flags().Changed("interface") {
				iface = cfg.Discovery.Interface
			}
			b := &discovery.Browser{Interface: iface, Logger: logger}
			services, err := b.FindAll(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			if len(services) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No logger services found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "INSTANCE\tADDRESS\tUID\tADDRESSES")
			for _, svc := range services {
				host, port := svc.Dial()
				uid := "-"
				if v, ok := svc.UID(); ok {
					uid = strconv.Itoa(int(v))
				}
				fmt.Fprintf(tw, "%s\t%s:%d\t%s\t%s\n",
					svc.Instance, host, port, uid, strings.Join(svc.Addresses, ","))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", discovery.DefaultTimeout, "How long to browse")
	cmd.Flags().StringVarP(&iface, "interface", "i", "", "Network interface to browse on")

	cmd.AddCommand(announceCmd())

	return cmd
}

func announceCmd() *cobra.Command {
	var (
		name  string
		port  int
		uid   int32
		iface string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Advertise a logger on behalf of the service",
		Long: `Advertise a logger service via mDNS until interrupted, so watchers
started with --discover can find it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				host, err := os.Hostname()
				if err != nil {
					return fmt.Errorf("no --name and hostname unavailable: %w", err)
				}
				name = "kbelogger-" + host
			}

			txt := map[string]string{discovery.TXTKeyVersion: version}
			if cmd.Flags().Changed("logger-uid") {
				txt[discovery.TXTKeyUID] = strconv.Itoa(int(uid))
			}

			a := &discovery.Announcer{Interface: iface, TTL: ttl}
			if err := a.Start(discovery.AnnounceInfo{Instance: name, Port: port, TXT: txt}); err != nil {
				return err
			}
			defer a.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Announcing %s on port %d (Ctrl+C to stop)\n", name, port)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&name, "name", "n", "", "Instance name (default: kbelogger-<hostname>)")
	f.IntVar(&port, "logger-port", discovery.DefaultPort, "Logger TCP port to advertise")
	f.Int32Var(&uid, "logger-uid", 0, "KBEngine uid to publish in TXT")
	f.StringVarP(&iface, "interface", "i", "", "Network interface to announce on")
	f.DurationVar(&ttl, "ttl", 0, "Record TTL (default: library default)")

	return cmd
}
