package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbe-tools/kbelog/pkg/sink"
)

func watchCmd(opts *rootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream log lines from the logger",
		Long: `Connect to the logger, register as a watcher and forward every log
line to the configured sinks until interrupted or the logger closes the
connection.

With --once, kbelog exits as soon as the logger has been quiet for one
poll interval instead of sending heartbeats.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := newSession(cfg, logger)
			if err != nil {
				return err
			}
			defer s.close()

			out, err := buildSinks(ctx, cfg, s.metrics, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() {
				if err := out.Close(); err != nil {
					logger.Warn("closing sinks", "error", err)
				}
			}()
			if out.Len() == 0 {
				logger.Warn("no sinks enabled; received lines are discarded")
			}

			if err := s.connect(ctx); err != nil {
				return err
			}
			if err := s.watcher.Register(cfg.Logger.UID); err != nil {
				return err
			}
			logger.Info("registered as log watcher", "uid", cfg.Logger.UID)

			// Closing unblocks a pending receive when a signal arrives.
			release := context.AfterFunc(ctx, func() {
				_ = s.watcher.Deregister()
				_ = s.watcher.Close()
			})
			defer release()

			err = s.watcher.Receive(ctx, sink.AsHandler(ctx, out, logger), !once)
			if release() && s.watcher.Connected() {
				if derr := s.watcher.Deregister(); derr != nil {
					logger.Debug("deregister failed", "error", derr)
				}
			}
			if isDisconnect(ctx, err) {
				logger.Info("watch finished", "reason", reason(ctx, err))
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Exit after the first idle poll interval")

	return cmd
}

func reason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "interrupted"
	}
	if err != nil {
		return err.Error()
	}
	return "idle"
}
