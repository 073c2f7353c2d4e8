package serial

import (
	"fmt"
	"os"
)

var (
	// ErrClosed is returned by reads and writes after Close. It matches os.ErrClosed.
	ErrClosed = fmt.Errorf("serialreader closed: %w", os.ErrClosed)
	// ErrTimeout is returned by ReadLine when no complete line arrived in time.
	// It matches os.ErrDeadlineExceeded.
	ErrTimeout = fmt.Errorf("serial read: %w", os.ErrDeadlineExceeded)
)

// ConnectError reports a failure to open or configure a serial port.
type ConnectError struct {
	Device string
	Op     string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WriteError reports a line that could not be written.
type WriteError struct {
	Line string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %q: %v", e.Line, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
