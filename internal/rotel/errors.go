package rotel

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rotelhex/rotelhex/internal/charset"
	"github.com/rotelhex/rotelhex/internal/protocol"
	"github.com/rotelhex/rotelhex/internal/serialport"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeInvalidArgument indicates a caller error caught before anything
	// was written (unknown command, label too long, unmapped character)
	ErrTypeInvalidArgument ErrorType = iota
	// ErrTypeChannel indicates the serial channel could not be opened, read
	// or written
	ErrTypeChannel
	// ErrTypeFraming indicates a malformed or truncated frame
	ErrTypeFraming
	// ErrTypeClosed indicates the client or transport was already closed
	ErrTypeClosed
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeInvalidArgument:
		return "Invalid Argument"
	case ErrTypeChannel:
		return "Channel Error"
	case ErrTypeFraming:
		return "Framing Error"
	case ErrTypeClosed:
		return "Closed"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is returned by Client and Transport operations
type Error struct {
	Type    ErrorType // Category of error
	Message string    // Human-readable error message
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrClosed is returned by operations on a closed client or transport
var ErrClosed = &Error{Type: ErrTypeClosed, Message: "connection closed"}

// NewInvalidArgumentError creates an invalid argument error
func NewInvalidArgumentError(format string, args ...any) *Error {
	return &Error{
		Type:    ErrTypeInvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewChannelError creates a channel error wrapping err
func NewChannelError(message string, err error) *Error {
	return &Error{
		Type:    ErrTypeChannel,
		Message: message,
		Err:     err,
	}
}

// classify turns a low level error into an *Error. Errors that already are
// an *Error are returned unchanged.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return err
	}

	var missing *charset.MissingCharError
	switch {
	case errors.As(err, &missing):
		return &Error{Type: ErrTypeInvalidArgument, Message: message, Err: err}
	case protocol.IsFramingError(err):
		return &Error{Type: ErrTypeFraming, Message: message, Err: err}
	default:
		return NewChannelError(message, err)
	}
}

// IsInvalidArgument checks if an error was caused by bad caller input
func IsInvalidArgument(err error) bool {
	return hasType(err, ErrTypeInvalidArgument)
}

// IsChannelUnavailable checks if an error came from the serial channel
func IsChannelUnavailable(err error) bool {
	return hasType(err, ErrTypeChannel)
}

// IsFraming checks if an error is a framing error
func IsFraming(err error) bool {
	return hasType(err, ErrTypeFraming) || protocol.IsFramingError(err)
}

// IsClosed checks if an error means the client was closed
func IsClosed(err error) bool {
	return hasType(err, ErrTypeClosed)
}

func hasType(err error, t ErrorType) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Type == t
	}
	return false
}

// isTimeout reports whether err is an idle read timeout
func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return os.IsTimeout(err)
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var rerr *Error
	if !errors.As(err, &rerr) {
		return "An unexpected error occurred. Please try again."
	}

	switch rerr.Type {
	case ErrTypeChannel:
		hint := []string{"Could not talk to the receiver over the serial port."}
		if errors.Is(rerr, os.ErrPermission) {
			hint = append(hint,
				"Troubleshooting:",
				"  • Add your user to the dialout (Linux) or uucp group",
				"  • Check the permissions on the device node")
			return strings.Join(hint, "\n")
		}
		if serialport.IsDisconnect(rerr) {
			hint = append(hint, "The serial device went away.")
		}
		hint = append(hint,
			"Troubleshooting:",
			"  • Check the serial cable and USB adapter",
			"  • Verify the port path (rotelctl ports lists them)",
			"  • The receiver expects 2400 baud 8N1 unless configured otherwise")
		return strings.Join(hint, "\n")

	case ErrTypeInvalidArgument:
		return "The request was rejected before anything was sent. Check the error message for details."

	case ErrTypeFraming:
		return "A frame from the receiver was malformed. This is usually line noise and is retried automatically."

	case ErrTypeClosed:
		return "The connection was closed. Reconnect and try again."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var rerr *Error
	if !errors.As(err, &rerr) {
		return err.Error()
	}

	switch rerr.Type {
	case ErrTypeChannel:
		return "Receiver not reachable - check the serial connection"
	case ErrTypeFraming:
		return "Malformed frame from receiver"
	case ErrTypeClosed:
		return "Connection closed"
	default:
		return rerr.Message
	}
}
