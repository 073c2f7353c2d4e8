// Package command builds and sends outbound control commands.
//
// A command is a single ASCII line of space-separated tokens, NAME first,
// terminated by a newline. Delivery is fire-and-forget: nothing is
// acknowledged and nothing is retried.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Newline terminates every command on the wire.
const Newline = "\n"

// Command is an immutable, already-validated command line.
type Command struct {
	name string
	args []string
}

// New validates name and args as printable ASCII tokens without spaces.
// Semantic checks (numeric ranges and the like) belong to the caller.
func New(name string, args ...string) (Command, error) {
	if err := checkToken(name); err != nil {
		return Command{}, fmt.Errorf("command name: %w", err)
	}
	for i, a := range args {
		if err := checkToken(a); err != nil {
			return Command{}, fmt.Errorf("command %s arg %d: %w", name, i+1, err)
		}
	}
	return Command{name: name, args: append([]string(nil), args...)}, nil
}

func checkToken(s string) error {
	if s == "" {
		return fmt.Errorf("empty token")
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= ' ' || c > '~' {
			return fmt.Errorf("token %q: byte 0x%02x is not printable ASCII", s, c)
		}
	}
	return nil
}

// Name returns the command name.
func (c Command) Name() string { return c.name }

// Args returns a copy of the arguments.
func (c Command) Args() []string { return append([]string(nil), c.args...) }

// String returns the line as sent, without the newline.
func (c Command) String() string {
	if len(c.args) == 0 {
		return c.name
	}
	return c.name + " " + strings.Join(c.args, " ")
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Start asks the device to begin streaming.
func Start() Command { return Command{name: "START"} }

// Set changes the controller setpoint.
func Set(v float64) Command { return Command{name: "SET", args: []string{number(v)}} }

// Error sets the accepted error band.
func Error(lo, hi float64) Command {
	return Command{name: "ERROR", args: []string{number(lo), number(hi)}}
}

// Tune switches autotuning on or off.
func Tune(on bool) Command {
	if on {
		return Command{name: "TUNE", args: []string{"ON"}}
	}
	return Command{name: "TUNE", args: []string{"OFF"}}
}
