// Package capture records plant samples for a fixed window and writes them
// out as CSV. Reading and recording happen in one sequential loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/luhtfiimanal/go-serial-telemetry/acquire"
	"github.com/luhtfiimanal/go-serial-telemetry/command"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
	"github.com/luhtfiimanal/go-serial-telemetry/internal/logging"
	"github.com/rs/zerolog"
)

const (
	DefaultReadTimeout         = 100 * time.Millisecond
	DefaultReadErrorsThreshold = acquire.DefaultReadErrorsThreshold
)

// LineReader is the read side of the transport.
type LineReader interface {
	ReadLine(timeout time.Duration) (string, error)
}

// Sender delivers the start command.
type Sender interface {
	Send(cmd command.Command) error
}

// Recorder runs one capture window.
type Recorder struct {
	reader      LineReader
	sender      Sender
	decoder     *decode.Decoder
	readTimeout time.Duration
	now         func() time.Time
	onRow       func(decode.Plant)
	logger      zerolog.Logger
	diag        zerolog.Logger

	readErrorsThreshold int
}

// Option configures a Recorder.
type Option func(r *Recorder)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger.With().Str("component", "capture").Logger()
		r.diag = logging.Sampled(r.logger, logging.DefaultBurst, logging.DefaultPeriod)
	}
}

// WithReadErrorsThreshold sets how many consecutive failed reads end the capture.
func WithReadErrorsThreshold(n int) Option {
	return func(r *Recorder) {
		r.readErrorsThreshold = n
	}
}

// WithSender sends START through sender before the first read.
func WithSender(sender Sender) Option {
	return func(r *Recorder) {
		r.sender = sender
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(r *Recorder) {
		r.readTimeout = timeout
	}
}

// WithClock replaces time.Now for measuring the window.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// OnRow is called for every accepted row, in arrival order.
func OnRow(fn func(decode.Plant)) Option {
	return func(r *Recorder) {
		r.onRow = fn
	}
}

func New(reader LineReader, options ...Option) *Recorder {
	r := &Recorder{
		reader:      reader,
		readTimeout: DefaultReadTimeout,
		now:         time.Now,
		logger:      zerolog.Nop(),
		diag:        zerolog.Nop(),

		readErrorsThreshold: DefaultReadErrorsThreshold,
	}
	for _, option := range options {
		option(r)
	}
	if r.decoder == nil {
		r.decoder = decode.New(decode.WithClock(r.now))
	}
	return r
}

// Record sends START if a sender is set, then accepts plant rows until one
// arrives at or past duration, ctx is cancelled or the transport is closed.
// A failed read is logged and skipped; only a run of failures as long as the
// read errors threshold ends the capture, with acquire.ErrTooManyReadErrors.
// The rows collected so far are returned in every case.
func (r *Recorder) Record(ctx context.Context, duration time.Duration) ([]decode.Plant, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("capture duration must be positive, got %s", duration)
	}
	if r.readErrorsThreshold <= 0 {
		return nil, fmt.Errorf("invalid read errors threshold %d", r.readErrorsThreshold)
	}
	if r.sender != nil {
		if err := r.sender.Send(command.Start()); err != nil {
			return nil, fmt.Errorf("send start: %w", err)
		}
	}

	start := r.now()
	var rows []decode.Plant
	var consecutive int
	for {
		if ctx.Err() != nil {
			r.logger.Info().Int("rows", len(rows)).Msg("capture interrupted")
			return rows, nil
		}

		line, err := r.reader.ReadLine(r.readTimeout)
		switch {
		case err == nil:
			consecutive = 0
		case errors.Is(err, os.ErrDeadlineExceeded):
			consecutive = 0
			continue
		case errors.Is(err, os.ErrClosed):
			return rows, nil
		default:
			consecutive++
			r.diag.Warn().Err(err).Int("consecutive", consecutive).Msg("read failed")
			if consecutive >= r.readErrorsThreshold {
				return rows, fmt.Errorf("%w: %w", acquire.ErrTooManyReadErrors, err)
			}
			continue
		}

		sample, err := r.decoder.Decode(line)
		if err != nil {
			if errors.Is(err, decode.ErrRejected) {
				r.logger.Debug().Err(err).Msg("line skipped")
			}
			continue
		}
		row, ok := sample.(decode.Plant)
		if !ok {
			continue
		}

		rows = append(rows, row)
		if r.onRow != nil {
			r.onRow(row)
		}
		if r.now().Sub(start) >= duration {
			return rows, nil
		}
	}
}

// FormatRow renders a row the way it is echoed while capturing.
func FormatRow(p decode.Plant) string {
	return fmt.Sprintf("%.3f, %.2f, %.2f", p.T, p.U, p.V)
}
