package serial

import (
	"errors"
	"sync"
	"time"

	bugst "go.bug.st/serial"
)

// Port is a line-oriented serial port backed by go.bug.st/serial. It works
// on every platform that library supports and is the fallback when the raw
// termios reader is not available.
type Port struct {
	port      bugst.Port
	config    Config
	done      chan struct{}
	closeOnce sync.Once
	readyAt   time.Time

	readMu sync.Mutex
	lines  lineBuffer
	buf    []byte

	writeMu sync.Mutex
}

// OpenPort opens cfg.Device as 8N1 at cfg.BaudRate.
func OpenPort(cfg Config) (*Port, error) {
	cfg = cfg.withDefaults()

	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	p, err := bugst.Open(cfg.Device, mode)
	if err != nil {
		return nil, &ConnectError{Device: cfg.Device, Op: "open", Err: err}
	}

	return &Port{
		port:    p,
		config:  cfg,
		done:    make(chan struct{}),
		readyAt: time.Now().Add(cfg.SettleDelay),
		lines:   lineBuffer{delim: cfg.Delimiter},
		buf:     make([]byte, 4096),
	}, nil
}

// ListPorts returns the names of the serial ports found on this machine.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, err
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}

// ReadLine has the same contract as SerialReader.ReadLine.
func (p *Port) ReadLine(timeout time.Duration) (string, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()

	if line, ok := p.lines.next(); ok {
		return line, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		select {
		case <-p.done:
			return "", ErrClosed
		default:
		}

		wait := bugst.NoTimeout
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return "", ErrTimeout
			}
		}
		if err := p.port.SetReadTimeout(wait); err != nil {
			return "", p.mapErr(err)
		}

		n, err := p.port.Read(p.buf)
		if err != nil {
			return "", p.mapErr(err)
		}
		if n == 0 {
			// read timeout expired
			continue
		}
		p.lines.feed(p.buf[:n])
		if line, ok := p.lines.next(); ok {
			return line, nil
		}
	}
}

// ReadLinesLoop has the same contract as SerialReader.ReadLinesLoop.
func (p *Port) ReadLinesLoop(onLine func(string), onError func(error)) {
	readLinesLoop(p, p.config.ReadTimeout, onLine, onError)
}

// WriteLine has the same contract as SerialReader.WriteLine.
func (p *Port) WriteLine(line string, newline string) error {
	if err := waitUntil(p.readyAt, p.done); err != nil {
		return &WriteError{Line: line, Err: err}
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	select {
	case <-p.done:
		return &WriteError{Line: line, Err: ErrClosed}
	default:
	}
	if _, err := p.port.Write([]byte(line + newline)); err != nil {
		return &WriteError{Line: line, Err: p.mapErr(err)}
	}
	return nil
}

// Close releases the port. Safe to call multiple times.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.port.Close()
	})
	return err
}

func (p *Port) mapErr(err error) error {
	var portErr *bugst.PortError
	if errors.As(err, &portErr) && portErr.Code() == bugst.PortClosed {
		return ErrClosed
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	return err
}
