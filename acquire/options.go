package acquire

import (
	"time"

	"github.com/luhtfiimanal/go-serial-telemetry/command"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/logging"
	"github.com/rs/zerolog"
)

// Option configures a Service.
type Option func(s *Service)

// WithLogger sets the logger. Per-line diagnostics go through a burst-sampled
// copy of it so a noisy line cannot flood the output.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "acquire").Logger()
		s.diag = logging.Sampled(s.logger, logging.DefaultBurst, logging.DefaultPeriod)
	}
}

// WithDecoder replaces the default decoder.
func WithDecoder(d *decode.Decoder) Option {
	return func(s *Service) {
		s.decoder = d
	}
}

// WithReadTimeout bounds each read, and therefore how long Stop can take.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.readTimeout = timeout
	}
}

// WithChannel keeps a rolling window of the last capacity samples of kind.
// Without any WithChannel every kind gets DefaultCapacity.
func WithChannel(kind decode.Kind, capacity int) Option {
	return func(s *Service) {
		s.capacities[kind] = capacity
	}
}

// WithHandoffOnly keeps no rolling windows, for consumers that build their
// own history from the handoff queue.
func WithHandoffOnly() Option {
	return func(s *Service) {
		s.noWindows = true
	}
}

// WithoutHandoff disables the handoff queue, for consumers that only read
// rolling windows. Samples then returns nil and Stats.Dropped stays 0.
func WithoutHandoff() Option {
	return func(s *Service) {
		s.noHandoff = true
	}
}

// WithQueueSize bounds the handoff queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		s.queueSize = size
	}
}

// WithReadErrorsThreshold sets how many consecutive failed reads end the loop.
func WithReadErrorsThreshold(n int) Option {
	return func(s *Service) {
		s.readErrorsThreshold = n
	}
}

// WithStartCommand sends cmd through sender once, before the first read.
func WithStartCommand(sender Sender, cmd command.Command) Option {
	return func(s *Service) {
		s.sender = sender
		s.startCmd = &cmd
	}
}
