// Package mgenerr declares the error taxonomy shared by the generator control
// packages. Errors are sentinel values wrapped with fmt.Errorf("...: %w") at the
// point of failure and matched by callers with errors.Is.
package mgenerr

import (
	"errors"
)

// Class tells a caller whether an error ends the session or only the current line.
type Class int

const (
	// Recoverable errors affect a single log line or a single caller request.
	Recoverable Class = iota
	// Fatal errors end the session; restarting is the caller's decision.
	Fatal
)

// String returns the string representation of Class.
func (c Class) String() string {
	switch c {
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Process and channel lifecycle errors.
var (
	ErrLaunch               = errors.New("generator failed to reach ready state")
	ErrChannel              = errors.New("command channel failure")
	ErrChannelClosed        = errors.New("command channel closed")
	ErrUnsupportedOperation = errors.New("operation not supported by this session")
	ErrSinkSetup            = errors.New("sink wiring failed")
)

// Parsing and caller-correctable errors.
var (
	ErrMalformedEvent    = errors.New("malformed event line")
	ErrPayloadDecode     = errors.New("payload decode failed")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidProtocol   = errors.New("invalid protocol")
	ErrNoRespondent      = errors.New("no respondent available")
	ErrUnknownRespondent = errors.New("unknown respondent")
	ErrNotFound          = errors.New("not found")
)

var fatal = []error{ErrLaunch, ErrChannel, ErrChannelClosed, ErrSinkSetup}

// Classify returns the handling class of err. Errors outside the taxonomy are fatal.
func Classify(err error) Class {
	for _, f := range fatal {
		if errors.Is(err, f) {
			return Fatal
		}
	}
	for _, r := range []error{
		ErrMalformedEvent, ErrPayloadDecode, ErrPayloadTooLarge, ErrInvalidAddress,
		ErrInvalidProtocol, ErrNoRespondent, ErrUnknownRespondent, ErrNotFound,
		ErrUnsupportedOperation,
	} {
		if errors.Is(err, r) {
			return Recoverable
		}
	}
	return Fatal
}

// IsRecoverable reports whether err only affects the current line or request.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err) == Recoverable
}
