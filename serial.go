package serial

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// SerialReader provides low-latency, killable, line-oriented access to a Linux serial port.
// It is safe for concurrent use by multiple goroutines: reads are serialized
// against each other and writes are serialized against each other, but a read
// and a write may proceed at the same time.
type SerialReader struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	config    Config
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
	readyAt   time.Time

	readMu sync.Mutex
	lines  lineBuffer
	buf    []byte

	writeMu sync.Mutex
}

// Open opens a serial port using the provided Config and returns a SerialReader.
// The port is configured for raw, low-latency, non-buffered operation.
// Every failure is reported as a *ConnectError.
func Open(cfg Config) (*SerialReader, error) {
	cfg = cfg.withDefaults()

	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, &ConnectError{Device: cfg.Device, Op: "open", Err: err}
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, &ConnectError{Device: cfg.Device, Op: "get termios", Err: err}
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8

	// Baud rate
	baud := baudToUnix(cfg.BaudRate)
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud

	// Set VMIN=1, VTIME=0 for immediate reads; timeouts are handled by poll.
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return nil, &ConnectError{Device: cfg.Device, Op: "set termios", Err: err}
	}

	// Turn back into blocking mode now that config is done
	syscall.SetNonblock(fd, false)

	// Create self-pipe for killability
	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, &ConnectError{Device: cfg.Device, Op: "pipe", Err: err}
	}

	file := os.NewFile(uintptr(fd), cfg.Device)
	return &SerialReader{
		fd:      fd,
		file:    file,
		done:    make(chan struct{}),
		config:  cfg,
		pipeR:   pipeFds[0],
		pipeW:   pipeFds[1],
		readyAt: time.Now().Add(cfg.SettleDelay),
		lines:   lineBuffer{delim: cfg.Delimiter},
		buf:     make([]byte, 4096),
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (s *SerialReader) Config() Config {
	return s.config
}

// WriteLine writes a line (with specified newline) to the serial port.
// The first write after Open waits out the configured SettleDelay.
// Failures are reported as a *WriteError.
func (s *SerialReader) WriteLine(line string, newline string) error {
	if err := waitUntil(s.readyAt, s.done); err != nil {
		return &WriteError{Line: line, Err: err}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return &WriteError{Line: line, Err: ErrClosed}
	default:
	}
	if _, err := s.file.WriteString(line + newline); err != nil {
		return &WriteError{Line: line, Err: err}
	}
	return nil
}

// ReadLine reads a single line from the serial port, waiting at most timeout
// for it to complete. A timeout of zero or less waits until a line arrives or
// the reader is closed. Bytes of a line that is still incomplete when the
// timeout expires are kept for the next call.
//
// ReadLine returns ErrTimeout when no full line arrived in time and ErrClosed
// once Close has been called. This avoids bufio for lowest latency.
func (s *SerialReader) ReadLine(timeout time.Duration) (string, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	if line, ok := s.lines.next(); ok {
		return line, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		// Check killability
		select {
		case <-s.done:
			return "", ErrClosed
		default:
		}

		wait := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return "", ErrTimeout
			}
			wait = int((remaining + time.Millisecond - 1) / time.Millisecond)
		}

		// Use poll to wait for data or kill signal
		pfd := []unix.PollFd{
			{Fd: int32(s.fd), Events: unix.POLLIN},
			{Fd: int32(s.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, wait)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return "", err
		}
		if n == 0 {
			continue
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			// Drain pipe
			var b [1]byte
			unix.Read(s.pipeR, b[:])
			return "", ErrClosed
		}
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := s.file.Read(s.buf)
			if err != nil {
				select {
				case <-s.done:
					return "", ErrClosed
				default:
				}
				return "", err
			}
			s.lines.feed(s.buf[:n])
			if line, ok := s.lines.next(); ok {
				return line, nil
			}
		}
	}
}

// ReadLinesLoop continuously reads lines from the serial port and invokes onLine for each complete line.
// Read timeouts are absorbed. The loop exits silently once the reader is closed;
// any other error is passed to onError and the loop exits.
func (s *SerialReader) ReadLinesLoop(onLine func(string), onError func(error)) {
	readLinesLoop(s, s.config.ReadTimeout, onLine, onError)
}

// Close closes the serial port and unblocks any ReadLine/ReadLinesLoop calls.
// Safe to call multiple times; subsequent calls are no-ops.
func (s *SerialReader) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		// Wake up poll using self-pipe
		if s.pipeW > 0 {
			unix.Write(s.pipeW, []byte{1})
		}
		if s.file != nil {
			err = s.file.Close()
		}
		if s.pipeR > 0 {
			unix.Close(s.pipeR)
		}
		if s.pipeW > 0 {
			unix.Close(s.pipeW)
		}
	})
	return err
}

func baudToUnix(baud int) uint32 {
	switch baud {
	case 9600:
		return unix.B9600
	case 19200:
		return unix.B19200
	case 38400:
		return unix.B38400
	case 57600:
		return unix.B57600
	case 115200:
		return unix.B115200
	case 230400:
		return unix.B230400
	default:
		return unix.B115200 // fallback
	}
}
