package app

import (
	"sync"
	"time"

	serial "github.com/luhtfiimanal/go-serial-telemetry"
)

// fakeTransport replays queued lines and records writes. Queued lines are
// always delivered before ErrClosed.
type fakeTransport struct {
	lines     chan string
	closed    chan struct{}
	closeOnce sync.Once

	// gate, when set, holds every write until it or the transport is
	// closed, like the device's settle delay.
	gate chan struct{}

	mu       sync.Mutex
	written  []string
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		lines:  make(chan string, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadLine(timeout time.Duration) (string, error) {
	select {
	case l := <-f.lines:
		return l, nil
	default:
	}
	select {
	case l := <-f.lines:
		return l, nil
	case <-f.closed:
		return "", serial.ErrClosed
	case <-time.After(timeout):
		return "", serial.ErrTimeout
	}
}

func (f *fakeTransport) WriteLine(line, newline string) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.closed:
			return serial.ErrClosed
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return &serial.WriteError{Line: line, Err: f.writeErr}
	}
	f.written = append(f.written, line+newline)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}
