package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbe-tools/kbelog/internal/config"
	"github.com/kbe-tools/kbelog/pkg/transport"
	"github.com/kbe-tools/kbelog/pkg/wire"
)

func parseRoot(t *testing.T, args ...string) (*rootOptions, *cobra.Command) {
	t.Helper()
	opts := &rootOptions{}
	root := &cobra.Command{Use: "kbelog"}
	opts.bind(root)
	require.NoError(t, root.ParseFlags(args))
	return opts, root
}

func TestLoadConfigDefaults(t *testing.T) {
	opts, root := parseRoot(t)
	cfg, err := opts.loadConfig(root)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Logger.Host)
	assert.Equal(t, 20022, cfg.Logger.Port)
	assert.True(t, cfg.Sinks.Console.Enabled)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbelog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  host: filehost
  port: 1111
  uid: 5
log:
  level: warn
`), 0o600))

	t.Setenv("KBELOG_PORT", "2222")
	t.Setenv("KBELOG_UID", "7")

	opts, root := parseRoot(t, "--config", path, "--uid", "9", "--log-level", "debug")
	cfg, err := opts.loadConfig(root)
	require.NoError(t, err)

	assert.Equal(t, "filehost", cfg.Logger.Host, "file value survives")
	assert.Equal(t, 2222, cfg.Logger.Port, "environment beats file")
	assert.Equal(t, int32(9), cfg.Logger.UID, "flag beats environment")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigUnsetFlagsKeepLowerLayers(t *testing.T) {
	t.Setenv("KBELOG_HOST", "envhost")

	opts, root := parseRoot(t, "--port", "30000")
	cfg, err := opts.loadConfig(root)
	require.NoError(t, err)

	assert.Equal(t, "envhost", cfg.Logger.Host)
	assert.Equal(t, 30000, cfg.Logger.Port)
}

func TestLoadConfigInvalid(t *testing.T) {
	opts, root := parseRoot(t, "--port", "0")
	_, err := opts.loadConfig(root)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts, root := parseRoot(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := opts.loadConfig(root)
	assert.Error(t, err)
}

func TestIsDisconnect(t *testing.T) {
	live := context.Background()
	done, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, isDisconnect(live, nil))
	assert.True(t, isDisconnect(live, transport.ErrStreamClosed))
	assert.False(t, isDisconnect(live, transport.ErrNotConnected))
	assert.True(t, isDisconnect(done, transport.ErrNotConnected))
	assert.True(t, isDisconnect(done, context.Canceled))
	assert.False(t, isDisconnect(live, transport.ErrTransport))
}

type sentLog struct {
	uid     int32
	logType string
	text    string
}

func newTestConsole() (*console, *bytes.Buffer, *[]sentLog) {
	var out bytes.Buffer
	var sent []sentLog
	c := &console{
		out: &out,
		uid: 42,
		send: func(uid int32, logType string, text []byte) error {
			sent = append(sent, sentLog{uid, logType, string(text)})
			return nil
		},
	}
	return c, &out, &sent
}

func TestConsoleSendsLogRecords(t *testing.T) {
	c, _, sent := newTestConsole()

	assert.True(t, c.execute("warning  disk almost full "))
	assert.True(t, c.execute("INFO hello"))

	require.Len(t, *sent, 2)
	assert.Equal(t, sentLog{42, "WARNING", "disk almost full"}, (*sent)[0])
	assert.Equal(t, sentLog{42, "INFO", "hello"}, (*sent)[1])
}

func TestConsoleCommands(t *testing.T) {
	c, out, sent := newTestConsole()

	assert.True(t, c.execute(""))
	assert.True(t, c.execute("help"))
	assert.Contains(t, out.String(), "NORMAL, INFO, ERROR, DEBUG, WARNING")

	out.Reset()
	assert.True(t, c.execute("uid"))
	assert.Equal(t, "uid: 42\n", out.String())

	out.Reset()
	assert.True(t, c.execute("bogus text"))
	assert.Contains(t, out.String(), "Unknown command: bogus")

	out.Reset()
	assert.True(t, c.execute("DEBUG"))
	assert.Contains(t, out.String(), "Usage: DEBUG <text>")

	assert.Empty(t, *sent)
	assert.False(t, c.execute("quit"))
	assert.False(t, c.execute("exit"))
}

func TestConsoleReportsSendFailure(t *testing.T) {
	c, out, _ := newTestConsole()
	c.send = func(int32, string, []byte) error { return transport.ErrNotConnected }

	assert.True(t, c.execute("ERROR boom"))
	assert.Contains(t, out.String(), "Send failed: not connected")
}

func TestLogTypeList(t *testing.T) {
	assert.Equal(t, len(wire.LogTypes), len(bytes.Split([]byte(logTypeList()), []byte(", "))))
}

func TestVersionCommand(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}

func TestSendRequiresValidType(t *testing.T) {
	opts := &rootOptions{}
	root := &cobra.Command{Use: "kbelog", SilenceUsage: true, SilenceErrors: true}
	opts.bind(root)
	root.AddCommand(sendCmd(opts))
	root.SetArgs([]string{"send", "LOUD", "hello"})

	err := root.Execute()
	assert.True(t, errors.Is(err, wire.ErrInvalidLogType), "got %v", err)
}
