// Package acquire runs the producer side of the telemetry pipeline: it reads
// lines from a transport, decodes them and hands the samples to per-kind
// rolling windows and a bounded handoff queue.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luhtfiimanal/go-serial-telemetry/command"
	"github.com/luhtfiimanal/go-serial-telemetry/decode"
	"github.com/luhtfiimanal/go-serial-telemetry/ring"
	"github.com/rs/zerolog"
)

const (
	DefaultCapacity            = 200
	DefaultQueueSize           = 256
	DefaultReadTimeout         = 100 * time.Millisecond
	DefaultReadErrorsThreshold = 10
)

var (
	// ErrTooManyReadErrors ends the loop when reads keep failing, which means
	// the device is gone even though the port is still open.
	ErrTooManyReadErrors = errors.New("too many consecutive read errors")

	// ErrRunning is returned by Start on a service that is already running.
	ErrRunning = errors.New("acquisition already running")
)

// LineReader is the read side of a serial transport. A timeout is reported
// with an error matching os.ErrDeadlineExceeded and a closed transport with
// one matching os.ErrClosed.
type LineReader interface {
	ReadLine(timeout time.Duration) (string, error)
}

// Sender delivers a command to the device.
type Sender interface {
	Send(cmd command.Command) error
}

// Stats counts what the loop has seen so far.
type Stats struct {
	Lines      uint64 // lines read
	Decoded    uint64 // lines that produced a sample
	Ignored    uint64 // header and blank lines
	Rejected   uint64 // lines that could not be decoded
	ReadErrors uint64 // failed reads, timeouts excluded
	Dropped    uint64 // samples evicted from the handoff queue unread
}

// Service is the acquisition loop and the containers it fills.
type Service struct {
	r                   LineReader
	decoder             *decode.Decoder
	readTimeout         time.Duration
	capacities          map[decode.Kind]int
	queueSize           int
	readErrorsThreshold int
	sender              Sender
	startCmd            *command.Command
	noWindows           bool
	noHandoff           bool

	logger zerolog.Logger
	diag   zerolog.Logger

	channels map[decode.Kind]*ring.Buffer[decode.Sample]
	queue    *ring.Queue[decode.Sample]

	lines      atomic.Uint64
	decoded    atomic.Uint64
	ignored    atomic.Uint64
	rejected   atomic.Uint64
	readErrors atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New creates a service reading from r. Channels and the queue are
// allocated here and live as long as the service.
func New(r LineReader, options ...Option) (*Service, error) {
	s := &Service{
		r:                   r,
		readTimeout:         DefaultReadTimeout,
		capacities:          make(map[decode.Kind]int),
		queueSize:           DefaultQueueSize,
		readErrorsThreshold: DefaultReadErrorsThreshold,
		logger:              zerolog.Nop(),
		diag:                zerolog.Nop(),
	}
	for _, option := range options {
		option(s)
	}
	if s.decoder == nil {
		s.decoder = decode.New()
	}
	if s.readTimeout <= 0 {
		return nil, fmt.Errorf("invalid read timeout %s", s.readTimeout)
	}
	if s.readErrorsThreshold <= 0 {
		return nil, fmt.Errorf("invalid read errors threshold %d", s.readErrorsThreshold)
	}
	if s.noWindows {
		if s.noHandoff {
			return nil, errors.New("service keeps neither windows nor a handoff queue")
		}
		clear(s.capacities)
	} else if len(s.capacities) == 0 {
		for _, k := range []decode.Kind{decode.KindOrientation, decode.KindPlant, decode.KindDistance} {
			s.capacities[k] = DefaultCapacity
		}
	}

	s.channels = make(map[decode.Kind]*ring.Buffer[decode.Sample], len(s.capacities))
	for kind, capacity := range s.capacities {
		b, err := ring.NewBuffer[decode.Sample](capacity)
		if err != nil {
			return nil, fmt.Errorf("%s channel: %w", kind, err)
		}
		s.channels[kind] = b
	}

	if s.noHandoff {
		return s, nil
	}
	q, err := ring.NewQueue[decode.Sample](s.queueSize)
	if err != nil {
		return nil, fmt.Errorf("handoff queue: %w", err)
	}
	s.queue = q
	return s, nil
}

// Run reads until ctx is cancelled, the transport is closed, or reads fail
// ErrTooManyReadErrors times in a row. Cancellation is checked once per
// read, so Run returns at most one read timeout after ctx is done.
// A stop or a closed transport returns nil.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().Dur("read_timeout", s.readTimeout).Msg("starting acquisition")
	defer s.logger.Info().Msg("acquisition stopped")

	if s.startCmd != nil && s.sender != nil {
		if err := s.sender.Send(*s.startCmd); err != nil {
			s.diag.Warn().Err(err).Str("command", s.startCmd.String()).Msg("start command not sent")
		}
	}

	var consecutive int
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := s.r.ReadLine(s.readTimeout)
		switch {
		case err == nil:
			consecutive = 0
			s.handle(line)

		case errors.Is(err, os.ErrDeadlineExceeded):
			consecutive = 0

		case errors.Is(err, os.ErrClosed):
			s.logger.Info().Msg("transport closed")
			return nil

		default:
			s.readErrors.Add(1)
			consecutive++
			s.diag.Warn().Err(err).Int("consecutive", consecutive).Msg("read failed")
			if consecutive >= s.readErrorsThreshold {
				return fmt.Errorf("%w: %w", ErrTooManyReadErrors, err)
			}
		}
	}
}

func (s *Service) handle(line string) {
	// counted last so Stats never runs ahead of the containers
	defer s.lines.Add(1)

	sample, err := s.decoder.Decode(line)
	switch {
	case err == nil:
	case errors.Is(err, decode.ErrIgnored):
		s.ignored.Add(1)
		return
	default:
		s.rejected.Add(1)
		s.diag.Debug().Err(err).Msg("line rejected")
		return
	}

	s.decoded.Add(1)
	if ch, ok := s.channels[sample.Kind()]; ok {
		ch.Push(sample)
	}
	if s.queue == nil {
		return
	}
	if n := s.queue.Offer(sample); n > 0 {
		s.diag.Debug().Int("dropped", n).Msg("handoff queue full, dropped oldest")
	}
}

// Start runs the loop in a new goroutine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.done = make(chan struct{})
	s.err = nil

	go func(done chan struct{}) {
		defer close(done)
		err := s.Run(ctx)

		s.mu.Lock()
		s.err = err
		s.running = false
		s.mu.Unlock()
	}(s.done)
	return nil
}

// Stop cancels a loop started with Start and waits for it to exit. It is
// safe to call more than once, and on a service that was never started.
func (s *Service) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return s.Wait()
}

// Wait blocks until a loop started with Start has exited and returns its error.
func (s *Service) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Running reports whether a loop started with Start is still going.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Snapshot returns the rolling window for kind, oldest first. It returns nil
// if the service keeps no channel for kind.
func (s *Service) Snapshot(kind decode.Kind) []decode.Sample {
	ch, ok := s.channels[kind]
	if !ok {
		return nil
	}
	return ch.Snapshot()
}

// Window is Snapshot plus the number of samples of kind seen so far, so
// callers can label the window with absolute sample indices.
func (s *Service) Window(kind decode.Kind) ([]decode.Sample, uint64) {
	ch, ok := s.channels[kind]
	if !ok {
		return nil, 0
	}
	return ch.SnapshotTotal()
}

// Capacity returns the channel capacity for kind, or 0 if there is none.
func (s *Service) Capacity(kind decode.Kind) int {
	ch, ok := s.channels[kind]
	if !ok {
		return 0
	}
	return ch.Cap()
}

// Samples returns the handoff queue's receive side, or nil when the service
// was built WithoutHandoff.
func (s *Service) Samples() <-chan decode.Sample {
	if s.queue == nil {
		return nil
	}
	return s.queue.C()
}

// Drain removes every sample waiting in the handoff queue without blocking.
func (s *Service) Drain() []decode.Sample {
	if s.queue == nil {
		return nil
	}
	return s.queue.Drain()
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	var dropped uint64
	if s.queue != nil {
		dropped = s.queue.Dropped()
	}
	return Stats{
		Lines:      s.lines.Load(),
		Decoded:    s.decoded.Load(),
		Ignored:    s.ignored.Load(),
		Rejected:   s.rejected.Load(),
		ReadErrors: s.readErrors.Load(),
		Dropped:    dropped,
	}
}
