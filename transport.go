package serial

import (
	"errors"
	"fmt"
	"time"
)

// Transport is a line-oriented serial connection. Both *SerialReader and
// *Port implement it.
type Transport interface {
	ReadLine(timeout time.Duration) (string, error)
	WriteLine(line string, newline string) error
	Close() error
}

var (
	_ Transport = (*SerialReader)(nil)
	_ Transport = (*Port)(nil)
)

// OpenTransport opens cfg.Device with the backend named in cfg.Backend.
func OpenTransport(cfg Config) (Transport, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendTermios:
		return Open(cfg)
	case BackendPortable:
		return OpenPort(cfg)
	default:
		return nil, &ConnectError{Device: cfg.Device, Op: "select backend", Err: fmt.Errorf("unknown backend %q", cfg.Backend)}
	}
}

func readLinesLoop(t Transport, timeout time.Duration, onLine func(string), onError func(error)) {
	for {
		line, err := t.ReadLine(timeout)
		switch {
		case err == nil:
			onLine(line)
		case errors.Is(err, ErrTimeout):
		case errors.Is(err, ErrClosed):
			return
		default:
			onError(err)
			return
		}
	}
}

// waitUntil blocks until t or until done is closed.
func waitUntil(t time.Time, done <-chan struct{}) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-done:
		return ErrClosed
	}
}
