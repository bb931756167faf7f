// Package logger holds the process-wide zerolog logger.
//
// Call Init once from main. Packages that are handed a logger should use it;
// Component exists for wiring code that builds per-component children.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures Init.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Anything else means info.
	Level string
	// Pretty switches to the coloured console writer for local development.
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// Service and Instance are attached to every entry when set. Instance
	// defaults to the host name so entries from several replicas can be told
	// apart.
	Service  string
	Instance string
}

var (
	mu       sync.Mutex
	instance *zerolog.Logger
)

// Init builds the process logger. Only the first call has an effect; later
// calls return the logger built by the first one.
func Init(opts Options) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return *instance
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl := parseLevel(opts.Level)
	zerolog.SetGlobalLevel(lvl)

	l := zerolog.New(writer(opts)).Level(lvl)
	ctx := l.With().Timestamp().Caller()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	if host := instanceName(opts.Instance); host != "" {
		ctx = ctx.Str("instance", host)
	}
	built := ctx.Logger()
	instance = &built
	return built
}

// Get returns the logger built by Init. It panics before Init.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if instance == nil {
		panic("logger: Get() called before Init()")
	}
	return *instance
}

// Component returns a child logger tagged with component=name.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}

// Reset forgets the logger so tests can call Init again.
func Reset() {
	mu.Lock()
	instance = nil
	mu.Unlock()
}

func writer(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return out
}

func instanceName(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	switch lvl {
	case zerolog.TraceLevel, zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel, zerolog.ErrorLevel:
		return lvl
	default:
		return zerolog.InfoLevel
	}
}
