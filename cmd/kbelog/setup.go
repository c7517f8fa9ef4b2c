package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kbe-tools/kbelog/internal/config"
	"github.com/kbe-tools/kbelog/pkg/discovery"
	"github.com/kbe-tools/kbelog/pkg/log"
	"github.com/kbe-tools/kbelog/pkg/metrics"
	"github.com/kbe-tools/kbelog/pkg/sink"
	"github.com/kbe-tools/kbelog/pkg/transport"
	"github.com/kbe-tools/kbelog/pkg/watcher"
)

// rootOptions are the persistent flags shared by the session commands.
type rootOptions struct {
	configPath string
	logLevel   string
	host       string
	port       int
	uid        int32
	capture    string
	discover   bool
}

func (o *rootOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVarP(&o.host, "host", "H", "", "Logger host")
	f.IntVarP(&o.port, "port", "p", 0, "Logger port")
	f.Int32VarP(&o.uid, "uid", "u", 0, "Watcher uid (default: $KBELOG_UID or $KBE_UID)")
	f.StringVar(&o.capture, "capture", "", "Write a protocol capture to this file")
	f.BoolVar(&o.discover, "discover", false, "Locate the logger via mDNS")
}

// loadConfig builds the effective configuration: defaults, the YAML file,
// the environment, then flags the user set explicitly.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("host") {
		cfg.Logger.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Logger.Port = o.port
	}
	if flags.Changed("uid") {
		cfg.Logger.UID = o.uid
	}
	if flags.Changed("capture") {
		cfg.Log.Capture = o.capture
	}
	if flags.Changed("discover") {
		cfg.Discovery.Enabled = o.discover
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns the operational logger for cfg, writing to w.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// session bundles a configured watcher and the resources around it.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	watcher *watcher.Watcher
	metrics *metrics.Metrics

	capture       *log.FileLogger
	metricsServer *http.Server
}

// newSession builds a watcher from cfg. Nothing is connected yet.
func newSession(cfg *config.Config, logger *slog.Logger) (*session, error) {
	wc, err := cfg.WireConfig()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}

	var captureLogger log.Logger
	if cfg.Log.Capture != "" {
		fl, err := log.NewFileLogger(cfg.Log.Capture)
		if err != nil {
			return nil, fmt.Errorf("open capture file: %w", err)
		}
		s.capture = fl
		captureLogger = fl
		if cfg.SlogLevel() <= slog.LevelDebug {
			captureLogger = log.NewMultiLogger(fl, log.NewSlogAdapter(logger))
		}
		logger.Info("protocol capture enabled", "path", cfg.Log.Capture)
	}

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		s.metrics = metrics.New(reg)
		s.startMetricsServer(cfg.Metrics.Listen)
	}

	wcfg := watcher.DefaultConfig()
	wcfg.Wire = wc
	wcfg.PollTimeout = cfg.Receive.PollTimeout
	wcfg.ReadChunkSize = cfg.Receive.ChunkSize
	wcfg.Logger = logger
	wcfg.ProtocolLogger = captureLogger
	wcfg.Metrics = s.metrics

	w, err := watcher.New(wcfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.watcher = w
	return s, nil
}

func (s *session) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.Info("metrics endpoint listening", "addr", addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics endpoint failed", "error", err)
		}
	}()
}

// connect resolves the logger address, via mDNS when enabled, and dials it.
func (s *session) connect(ctx context.Context) error {
	host, port := s.cfg.Logger.Host, s.cfg.Logger.Port

	if s.cfg.Discovery.Enabled {
		b := &discovery.Browser{Interface: s.cfg.Discovery.Interface, Logger: s.logger}
		svc, err := b.FindFirst(ctx, s.cfg.Discovery.Timeout)
		if err != nil {
			return err
		}
		host, port = svc.Dial()
		if uid, ok := svc.UID(); ok && s.cfg.Logger.UID == 0 {
			s.cfg.Logger.UID = uid
		}
		s.logger.Info("logger discovered", "instance", svc.Instance, "host", host, "port", port)
	}

	if err := s.watcher.Connect(ctx, host, port); err != nil {
		return err
	}
	s.logger.Info("connected to logger", "host", host, "port", port)
	return nil
}

// buildSinks opens every sink enabled in cfg. out is used by the console sink.
func buildSinks(ctx context.Context, cfg *config.Config, m *metrics.Metrics, out io.Writer) (*sink.Multi, error) {
	var sinks []sink.Sink
	fail := func(err error) (*sink.Multi, error) {
		_ = sink.NewMulti(nil, sinks...).Close()
		return nil, err
	}

	if cfg.Sinks.Console.Enabled {
		sinks = append(sinks, sink.NewConsole(out, cfg.Sinks.Console.Hex))
	}

	if fc := cfg.Sinks.File; fc.Path != "" {
		f, err := sink.NewFile(sink.FileConfig{
			Path:       fc.Path,
			Format:     fc.Format,
			MaxSizeMB:  fc.MaxSizeMB,
			MaxBackups: fc.MaxBackups,
			MaxAgeDays: fc.MaxAgeDays,
			Compress:   fc.Compress,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, f)
	}

	if nc := cfg.Sinks.NATS; nc.URL != "" {
		n, err := sink.DialNATS(nc.URL, nc.Subject)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, n)
	}

	if rc := cfg.Sinks.Redis; rc.Addr != "" {
		r, err := sink.DialRedis(ctx, sink.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Stream:   rc.Stream,
			MaxLen:   rc.MaxLen,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, r)
	}

	return sink.NewMulti(m, sinks...), nil
}

// close releases everything the session opened. Safe to call more than once.
func (s *session) close() {
	if s.watcher != nil && s.watcher.Connected() {
		_ = s.watcher.Close()
	}
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metricsServer.Shutdown(ctx)
		cancel()
		s.metricsServer = nil
	}
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			s.logger.Warn("closing capture file", "error", err)
		}
		s.capture = nil
	}
}

// isDisconnect reports whether err only says the session ended.
func isDisconnect(ctx context.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, transport.ErrStreamClosed):
		return true
	case ctx.Err() != nil && (errors.Is(err, transport.ErrNotConnected) || errors.Is(err, context.Canceled)):
		return true
	}
	return false
}

// stderr is where operational logs go so stdout stays clean for log lines.
var stderr io.Writer = os.Stderr
