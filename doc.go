// Package serial provides a minimal serial port transport
// designed for high-frequency line-oriented telemetry from embedded devices.
//
// This package is optimized for real-time use cases such as live sensor
// plots and controller tuning, where data arrives with high frequency
// and must be read as soon as newline-delimited lines are available.
//
// Features:
//   - Raw syscall-based serial I/O on Linux, no buffering delays
//   - Line-based reading with custom newline (default: \n)
//   - Bounded per-call read timeout; partial lines survive a timeout
//   - Optional settle delay before the first write, for devices that reset on open
//   - Safe for concurrent usage with killability
//   - Self-pipe mechanism for killability
//   - Portable fallback backend and port discovery via go.bug.st/serial
//   - PTY-based tests for reliability
//
// The termios backend does **not** support Windows; use OpenPort there.
//
// Example usage:
//
//	cfg := serial.Config{
//	    Device:      "/dev/ttyUSB0",
//	    BaudRate:    115200,
//	    Delimiter:   "\n",
//	    ReadTimeout: 100 * time.Millisecond,
//	}
//	reader, err := serial.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//
//	for {
//	    line, err := reader.ReadLine(cfg.ReadTimeout)
//	    if errors.Is(err, serial.ErrTimeout) {
//	        continue
//	    }
//	    if err != nil {
//	        break
//	    }
//	    fmt.Println("Received:", line)
//	}
//
// Subpackages build the acquisition pipeline on top of this transport.
// decode turns lines into typed samples and ring holds bounded rolling
// windows. acquire runs the producer loop, command serializes outbound
// control commands and control maps tuning actions to commands. The
// telemetry binary under cmd/telemetry serves the viewer and tuning
// dashboard and runs the timed CSV logger.
package serial
