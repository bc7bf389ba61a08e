// Package logging builds the zap loggers used across betbox.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures a logger created with New.
type Option func(*options)

type options struct {
	level   zapcore.Level
	json    bool
	color   bool
	writers []io.Writer
}

// WithLevel sets the minimum level.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) { o.level = level }
}

// WithJSON switches to the JSON encoder.
func WithJSON(json bool) Option {
	return func(o *options) { o.json = json }
}

// WithColor colours level names in console output.
func WithColor(color bool) Option {
	return func(o *options) { o.color = color }
}

// WithWriters overrides the output. Defaults to os.Stderr so that command
// output on stdout stays clean.
func WithWriters(w ...io.Writer) Option {
	return func(o *options) { o.writers = w }
}

// New returns a logger writing to the configured writers.
func New(opts ...Option) *zap.Logger {
	o := options{level: zapcore.InfoLevel}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.writers) == 0 {
		o.writers = []io.Writer{os.Stderr}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if o.json {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		if o.color {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(o.writers))
	for _, w := range o.writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), o.level)
	return zap.New(core, zap.AddCaller())
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// ParseLevel accepts zap level names. An empty string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
