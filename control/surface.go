// Package control is the tuning dashboard's control surface: named numeric
// parameters with defaults, a connection state machine, and the mapping from
// operator actions to outbound commands.
package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/luhtfiimanal/go-serial-telemetry/command"
	"github.com/rs/zerolog"
)

// Parameter names, in display order.
const (
	ParamSet    = "SET"
	ParamKP     = "KP"
	ParamKI     = "KI"
	ParamKD     = "KD"
	ParamAmp    = "AMP"
	ParamCycles = "CYCLES"
	ParamErrMin = "ERR MIN"
	ParamErrMax = "ERR MAX"
)

var (
	// ErrNotConnected is returned by actions that need a connected device.
	ErrNotConnected = errors.New("control surface disconnected")
	// ErrUnknownParam is returned for a parameter name the surface does not have.
	ErrUnknownParam = errors.New("unknown parameter")
)

var paramOrder = []string{ParamSet, ParamKP, ParamKI, ParamKD, ParamAmp, ParamCycles, ParamErrMin, ParamErrMax}

var defaults = map[string]float64{
	ParamSet:    100,
	ParamKP:     0.139,
	ParamKI:     0.116,
	ParamKD:     0.042,
	ParamAmp:    20,
	ParamCycles: 6,
	ParamErrMin: -3,
	ParamErrMax: 3,
}

// State is the connection state of the surface.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Param is one named parameter and its current value.
type Param struct {
	Name  string
	Value float64
}

// Surface holds the operator-editable parameters and turns actions into
// commands. It is safe for concurrent use.
type Surface struct {
	mu      sync.Mutex
	values  map[string]float64
	tune    bool
	state   State
	gen     uint64 // bumped by every Connect
	channel *command.Channel
	logger  zerolog.Logger
}

// Option configures a Surface.
type Option func(s *Surface)

// WithLogger sets the logger for state changes.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Surface) {
		s.logger = logger.With().Str("component", "control").Logger()
	}
}

// New returns a disconnected surface with every parameter at its default.
func New(options ...Option) *Surface {
	s := &Surface{
		values: make(map[string]float64, len(defaults)),
		logger: zerolog.Nop(),
	}
	for k, v := range defaults {
		s.values[k] = v
	}
	for _, option := range options {
		option(s)
	}
	s.channel = command.NewChannel(nil, command.WithLogger(s.logger))
	return s
}

// Params returns every parameter in display order.
func (s *Surface) Params() []Param {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Param, 0, len(paramOrder))
	for _, name := range paramOrder {
		out = append(out, Param{Name: name, Value: s.values[name]})
	}
	return out
}

// Value returns the current value of the named parameter.
func (s *Surface) Value(name string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownParam, name)
	}
	return v, nil
}

// SetParam parses text as the new value of the named parameter. Nothing is
// sent; use the Apply actions for that.
func (s *Surface) SetParam(name, text string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return fmt.Errorf("parameter %s: %q is not a number", name, text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[name]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownParam, name)
	}
	s.values[name] = v
	return nil
}

// State returns the connection state.
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tune reports the autotune switch position.
func (s *Surface) Tune() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tune
}

// Connect attaches w and announces the current setpoint. If that first
// write fails the surface stays disconnected and the error is returned.
// Writes happen outside the surface lock, so readers are not held up by a
// slow transport.
func (s *Surface) Connect(w command.LineWriter) error {
	s.mu.Lock()
	s.channel.Attach(w)
	s.state = Connected
	s.gen++
	gen := s.gen
	cmd := command.Set(s.values[ParamSet])
	s.mu.Unlock()

	s.logger.Info().Msg("connected")
	return s.write(gen, cmd)
}

// Disconnect detaches the writer. Closing the transport is the caller's job.
func (s *Surface) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

// ApplySetpoint sends SET with the current SET value.
func (s *Surface) ApplySetpoint() error {
	return s.send(func() command.Command {
		return command.Set(s.values[ParamSet])
	})
}

// ApplyError sends ERROR with the current ERR MIN and ERR MAX values.
func (s *Surface) ApplyError() error {
	return s.send(func() command.Command {
		return command.Error(s.values[ParamErrMin], s.values[ParamErrMax])
	})
}

// SetTune flips the autotune switch and sends TUNE ON or TUNE OFF. The
// switch keeps its new position even if the command cannot be sent.
func (s *Surface) SetTune(on bool) error {
	return s.send(func() command.Command {
		s.tune = on
		return command.Tune(on)
	})
}

// send runs build under the lock, then writes its command if connected.
func (s *Surface) send(build func() command.Command) error {
	s.mu.Lock()
	cmd := build()
	if s.state != Connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	gen := s.gen
	s.mu.Unlock()

	return s.write(gen, cmd)
}

// write sends cmd and drops the connection it was meant for if that fails.
func (s *Surface) write(gen uint64, cmd command.Command) error {
	err := s.channel.Send(cmd)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if s.gen == gen {
		s.disconnectLocked()
	}
	s.mu.Unlock()

	if errors.Is(err, command.ErrNotConnected) {
		return ErrNotConnected
	}
	return fmt.Errorf("send %s: %w", cmd, err)
}

func (s *Surface) disconnectLocked() {
	if s.state == Disconnected {
		return
	}
	s.channel.Attach(nil)
	s.state = Disconnected
	s.logger.Info().Msg("disconnected")
}
