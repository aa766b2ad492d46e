// Package logger builds the process zerolog.Logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, encoding and destination.
type Options struct {
	Level  string
	Format string // "json" or "console"
	// File, when set, replaces stderr with a rotating file.
	File string
	// Debug forces debug level and adds stack traces.
	Debug bool
}

// Setup returns the configured logger and a close func for the underlying
// writer.
func Setup(opts Options) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	var (
		out     io.Writer = os.Stderr
		closeFn           = func() error { return nil }
	)
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = rotating
		closeFn = rotating.Close
	}

	if opts.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: opts.File != "", FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.Debug {
		ctx = ctx.Caller().Stack()
	}
	return ctx.Logger(), closeFn, nil
}
