// Package logging builds the zerolog loggers used across the telemetry tools.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBurst is how many per-fault diagnostics pass per DefaultPeriod.
	DefaultBurst = 5
	// DefaultPeriod is the window DefaultBurst applies to.
	DefaultPeriod = time.Second
)

// New returns a human-readable logger writing to w at the named level
// ("debug", "info", "warn", ...).
func New(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// Sampled returns a copy of l that lets through at most burst events per
// period. Use it for diagnostics that a noisy line can repeat many times a
// second; everything past the burst is discarded until the period rolls over.
func Sampled(l zerolog.Logger, burst uint32, period time.Duration) zerolog.Logger {
	if burst == 0 || period <= 0 {
		return l
	}
	return l.Sample(&zerolog.BurstSampler{Burst: burst, Period: period})
}
