// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

type Options struct {
	Level      string // zerolog level name, default info
	Format     string // json | console
	TimeFormat string
	NoColor    bool
	Caller     bool
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_TIME_FORMAT, LOG_COLOR and
// LOG_CALLER.
func OptionsFromEnv() Options {
	return Options{
		Level:      os.Getenv("LOG_LEVEL"),
		Format:     os.Getenv("LOG_FORMAT"),
		TimeFormat: os.Getenv("LOG_TIME_FORMAT"),
		NoColor:    strings.TrimSpace(os.Getenv("LOG_COLOR")) == "0",
		Caller:     strings.TrimSpace(os.Getenv("LOG_CALLER")) == "1",
	}
}

// New builds a logger tagged with the service name.
func New(w io.Writer, service string, o Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(o.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	timeFormat := strings.TrimSpace(o.TimeFormat)
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	out := w
	if strings.TrimSpace(o.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat, NoColor: o.NoColor}
	}

	lc := zerolog.New(out).Level(level).With().Timestamp()
	if service != "" {
		lc = lc.Str("service", service)
	}
	if o.Caller {
		lc = lc.Caller()
	}
	return lc.Logger()
}

// Init installs the global logger for the named service. zerolog.Ctx falls
// back to it for contexts that carry no logger.
func Init(service string) {
	zerolog.DurationFieldUnit = time.Millisecond
	zlog.Logger = New(os.Stdout, service, OptionsFromEnv())
	zerolog.DefaultContextLogger = &zlog.Logger
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return zlog.Logger.With().Str("component", name).Logger()
}
