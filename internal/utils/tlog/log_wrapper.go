package tlog

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Values of the log_stream field
const (
	StreamApp   = "app"
	StreamHTTP  = "http"
	StreamAudit = "audit"
)

type Logger struct {
	Audit zerolog.Logger
	HTTP  zerolog.Logger
	App   zerolog.Logger
}

var (
	Audit = zerolog.Nop()
	HTTP  = zerolog.Nop()
	App   = zerolog.Nop()
)

func NewLogger(cfg config.LogConfig) *Logger {
	return newLogger(cfg, os.Stderr)
}

// NewSimpleLogger logs every stream at info to the console, for subcommands.
func NewSimpleLogger() *Logger {
	return NewLogger(config.DefaultLogConfig())
}

func (l *Logger) Init() {
	Audit = l.Audit
	HTTP = l.HTTP
	App = l.App
}

func newLogger(cfg config.LogConfig, out io.Writer) *Logger {
	level := parseLogLevel(cfg.Level)

	if !cfg.Json {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	context := zerolog.New(out).With().Timestamp().Str("service", "jellyauth")

	// Callers are noise outside of debugging
	if level <= zerolog.DebugLevel {
		context = context.Caller()
	}

	base := context.Logger().Level(level)

	return &Logger{
		Audit: newStream(base, StreamAudit, cfg.Streams.Audit),
		HTTP:  newStream(base, StreamHTTP, cfg.Streams.HTTP),
		App:   newStream(base, StreamApp, cfg.Streams.App),
	}
}

func newStream(base zerolog.Logger, name string, stream config.LogStreamConfig) zerolog.Logger {
	if !stream.Enabled {
		return zerolog.Nop()
	}

	logger := base.With().Str("log_stream", name).Logger()

	if stream.Level != "" {
		logger = logger.Level(parseLogLevel(stream.Level))
	}

	return logger
}

func parseLogLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}

	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		log.Warn().Str("level", level).Msg("Invalid log level, defaulting to info")
		return zerolog.InfoLevel
	}

	return parsed
}
