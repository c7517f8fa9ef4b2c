package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File output formats.
const (
	FormatRaw  = "raw"
	FormatJSON = "json"
)

// ErrUnknownFormat is returned for a file format other than raw or json.
var ErrUnknownFormat = errors.New("unknown file format")

// FileConfig configures a rotating file sink.
type FileConfig struct {
	// Path of the active log file.
	Path string

	// Format is FormatRaw (payload bytes) or FormatJSON (one JSON object per line).
	Format string

	// MaxSizeMB rotates the file at this size (default: 100).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (0 keeps all).
	MaxBackups int

	// MaxAgeDays removes rotated files older than this (0 keeps all).
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// File writes payloads to a size-rotated file.
type File struct {
	mu     sync.Mutex
	out    *lumberjack.Logger
	logger *zap.Logger
}

// NewFile opens a file sink. The file is created on first write.
func NewFile(config FileConfig) (*File, error) {
	if config.Path == "" {
		return nil, errors.New("file sink: empty path")
	}
	if config.Format == "" {
		config.Format = FormatRaw
	}
	if config.MaxSizeMB == 0 {
		config.MaxSizeMB = 100
	}

	f := &File{
		out: &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		},
	}

	switch config.Format {
	case FormatRaw:
	case FormatJSON:
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(newEncoderConfig()),
			zapcore.AddSync(f.out),
			zap.InfoLevel,
		)
		f.logger = zap.New(core)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, config.Format)
	}
	return f, nil
}

func newEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:    "ts",
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
		EncodeTime: zapcore.ISO8601TimeEncoder,
	}
}

// Name returns "file".
func (f *File) Name() string { return "file" }

// Write appends the payloads.
func (f *File) Write(ctx context.Context, payloads [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range payloads {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.logger != nil {
			f.logger.Info("log", zap.ByteString("payload", bytes.TrimRight(p, "\r\n")))
			continue
		}
		if _, err := f.out.Write(terminate(p)); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.logger != nil {
		_ = f.logger.Sync()
	}
	return f.out.Close()
}
