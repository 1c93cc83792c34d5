// Package serialport opens the receiver's RS-232 link using go.bug.st/serial.
//
// The receiver talks 8N1 at 2400 baud by default. Reads are bounded by a read
// timeout; a read that times out with no data returns ErrTimeout instead of
// the library's (0, nil), so callers can tell an idle line from a closed one.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Defaults for the receiver's serial link
const (
	DefaultPath        = "/dev/ttyS0"
	DefaultBaudRate    = 2400
	DefaultReadTimeout = 5 * time.Second
)

// ErrTimeout is returned by Port.Read when no data arrived within the read
// timeout
var ErrTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "serial read timeout" }
func (timeoutError) Timeout() bool { return true }

// ErrDisconnected wraps read and write errors that mean the device is gone
var ErrDisconnected = errors.New("serial device disconnected")

// Config holds serial port settings
type Config struct {
	Path        string
	BaudRate    int
	ReadTimeout time.Duration
}

// withDefaults fills in zero values
func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// Opener opens the configured port. Each Open returns a fresh Port, which is
// what a reconnecting read loop needs.
type Opener struct {
	Config Config
}

// NewOpener creates an Opener, applying defaults to zero fields
func NewOpener(cfg Config) *Opener {
	return &Opener{Config: cfg.withDefaults()}
}

// Open opens the serial port (8N1) and applies the read timeout
func (o *Opener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := o.Config.withDefaults()

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Path, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Path, err)
	}

	return &Port{port: port, path: cfg.Path}, nil
}

// String describes the opener for logs
func (o *Opener) String() string {
	cfg := o.Config.withDefaults()
	return fmt.Sprintf("%s@%d", cfg.Path, cfg.BaudRate)
}

// Port wraps an open serial port
type Port struct {
	port      serial.Port
	path      string
	closeOnce sync.Once
	closeErr  error
}

// Read reads from the port, returning ErrTimeout when the read timeout
// elapses with no data
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if err != nil {
		return n, classify(err)
	}
	if n == 0 && len(b) > 0 {
		return 0, ErrTimeout
	}
	return n, nil
}

// Write writes b to the port
func (p *Port) Write(b []byte) (int, error) {
	n, err := p.port.Write(b)
	if err != nil {
		return n, classify(err)
	}
	return n, nil
}

// Close closes the port. It is safe to call more than once; a blocked Read
// returns once the port is closed.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.port.Close()
	})
	return p.closeErr
}

// Path returns the device path
func (p *Port) Path() string {
	return p.path
}

// classify wraps errors that indicate the device went away with
// ErrDisconnected
func classify(err error) error {
	if IsDisconnect(err) {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return err
}

// IsDisconnect reports whether err means the serial device was closed,
// removed or otherwise became unusable
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisconnected) || errors.Is(err, io.EOF) {
		return true
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortClosed, serial.PortNotFound, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	// OS level errors that the library passes through unwrapped
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "bad file descriptor") ||
		strings.Contains(errStr, "file already closed")
}

// ListPorts returns the serial ports present on the system
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}
