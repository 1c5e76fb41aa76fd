// Package logging builds the slog loggers used by the kmsagent binaries.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Options selects the handler and the static attributes of a logger.
type Options struct {
	JSON    bool
	Debug   bool
	UID     bool
	Service string
	Version string
	Output  io.Writer
}

// Setup returns a logger writing to opts.Output, or stderr when unset.
func Setup(opts *Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	if opts.UID {
		logger = logger.With("uid", uuid.Must(uuid.NewRandom()).String())
	}
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
