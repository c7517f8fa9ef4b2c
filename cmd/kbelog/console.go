package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/kbe-tools/kbelog/pkg/sink"
	"github.com/kbe-tools/kbelog/pkg/wire"
)

func consoleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive session: view logs and send records",
		Long: `Start an interactive session. Received log lines are printed above
the prompt; typing "<TYPE> <text>" writes a record to the logger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "kbelog> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			logger := newLogger(cfg, rl.Stderr())

			s, err := newSession(cfg, logger)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			out, err := buildSinks(ctx, cfg, s.metrics, rl.Stdout())
			if err != nil {
				return err
			}
			defer out.Close()

			if err := s.connect(ctx); err != nil {
				return err
			}
			if err := s.watcher.Register(cfg.Logger.UID); err != nil {
				return err
			}

			c := &console{
				rl:   rl,
				out:  rl.Stdout(),
				uid:  cfg.Logger.UID,
				send: s.watcher.SendLog,
			}

			done := make(chan error, 1)
			go func() {
				done <- s.watcher.Receive(ctx, sink.AsHandler(ctx, out, logger), true)
				// Wake the prompt so the session ends with the connection.
				rl.Close()
			}()

			c.run()

			cancel()
			_ = s.watcher.Deregister()
			_ = s.watcher.Close()

			if err := <-done; !isDisconnect(ctx, err) {
				return err
			}
			return nil
		},
	}

	return cmd
}

// console is the interactive prompt.
type console struct {
	rl   *readline.Instance
	out  io.Writer
	uid  int32
	send func(uid int32, logType string, text []byte) error
}

func (c *console) run() {
	c.printHelp()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return
		}
		if !c.execute(line) {
			fmt.Fprintln(c.out, "Exiting...")
			return
		}
	}
}

// execute runs one input line. It returns false when the session should end.
func (c *console) execute(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	cmd, rest, _ := strings.Cut(input, " ")
	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp()

	case "quit", "exit", "q":
		return false

	case "uid":
		fmt.Fprintf(c.out, "uid: %d\n", c.uid)

	default:
		logType := strings.ToUpper(cmd)
		if _, err := wire.ParseLogType(logType); err != nil {
			fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
			return true
		}
		text := strings.TrimSpace(rest)
		if text == "" {
			fmt.Fprintf(c.out, "Usage: %s <text>\n", logType)
			return true
		}
		if err := c.send(c.uid, logType, []byte(text)); err != nil {
			fmt.Fprintf(c.out, "Send failed: %v\n", err)
		}
	}
	return true
}

func (c *console) printHelp() {
	fmt.Fprintf(c.out, `Commands:
  <TYPE> <text>  Write a log record (TYPE: %s)
  uid            Show the watcher uid
  help, ?        Show this help
  quit, exit, q  Leave the console
`, logTypeList())
}
