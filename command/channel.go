package command

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Send when no writer is attached.
var ErrNotConnected = errors.New("command channel not connected")

// LineWriter is the write side of a serial transport.
type LineWriter interface {
	WriteLine(line string, newline string) error
}

// Channel serializes commands onto a shared transport. At most one write is
// in flight at a time. Attach does not wait for it.
type Channel struct {
	sendMu sync.Mutex // held for the whole write
	mu     sync.Mutex // guards w
	w      LineWriter
	logger zerolog.Logger
}

// Option configures a Channel.
type Option func(c *Channel)

// WithLogger sets the logger used for sent and dropped commands.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger.With().Str("component", "command").Logger()
	}
}

// NewChannel creates a channel writing to w. A nil w leaves it disconnected.
func NewChannel(w LineWriter, options ...Option) *Channel {
	c := &Channel{w: w, logger: zerolog.Nop()}
	for _, option := range options {
		option(c)
	}
	return c
}

// Attach replaces the writer. Passing nil disconnects the channel.
func (c *Channel) Attach(w LineWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w = w
}

// Connected reports whether a writer is attached.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w != nil
}

// Send writes cmd once. A failed or impossible write drops the command;
// the error tells the caller but nothing is retried.
func (c *Channel) Send(cmd Command) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	w := c.w
	c.mu.Unlock()

	line := cmd.String()
	if w == nil {
		c.logger.Warn().Str("command", line).Msg("dropping command: not connected")
		return ErrNotConnected
	}
	if err := w.WriteLine(line, Newline); err != nil {
		c.logger.Warn().Err(err).Str("command", line).Msg("dropping command: write failed")
		return err
	}
	c.logger.Debug().Str("command", line).Msg("sent command")
	return nil
}
