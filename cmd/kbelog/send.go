package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbe-tools/kbelog/pkg/wire"
)

func sendCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <TYPE> <text>...",
		Short: "Write one log record to the logger",
		Long: fmt.Sprintf(`Connect to the logger and write a single log record.

TYPE is one of %s (case-insensitive). The remaining arguments are
joined with spaces; a trailing newline is added if missing.`, logTypeList()),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, stderr)

			logType := strings.ToUpper(args[0])
			if _, err := wire.ParseLogType(logType); err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")

			s, err := newSession(cfg, logger)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.connect(cmd.Context()); err != nil {
				return err
			}
			if err := s.watcher.SendLog(cfg.Logger.UID, logType, []byte(text)); err != nil {
				return err
			}
			logger.Debug("log record sent", "type", logType, "bytes", len(text))
			return nil
		},
	}

	return cmd
}

func logTypeList() string {
	names := make([]string, 0, len(wire.LogTypes))
	for _, t := range wire.LogTypes {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}
