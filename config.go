package serial

import "time"

// Backends accepted by OpenTransport.
const (
	BackendTermios  = "termios"
	BackendPortable = "portable"
)

const (
	DefaultBaudRate    = 115200
	DefaultDelimiter   = "\n"
	DefaultReadTimeout = 100 * time.Millisecond
)

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device      string
	BaudRate    int
	Delimiter   string        // default "\n"
	ReadTimeout time.Duration // used by ReadLinesLoop, default 100ms
	// SettleDelay holds back the first write after opening, giving a
	// freshly reset device time to boot.
	SettleDelay time.Duration
	Backend     string // BackendTermios (default) or BackendPortable
}

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.Backend == "" {
		c.Backend = BackendTermios
	}
	return c
}
