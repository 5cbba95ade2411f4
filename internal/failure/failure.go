// Package failure classifies errors raised by the simulation phases.
//
// Every phase error is reduced to one of two classes: [Transient] errors may be
// retried within the attempt budget, [Fatal] errors abort the phase at once.
// Collaborators that know the nature of a failure wrap it in an [*Error];
// raw transport errors are classified by [Classify].
package failure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Class is the retry classification of an error.
type Class string

const (
	Transient Class = "transient"
	Fatal     Class = "fatal"
)

// Kind names the taxonomy bucket an error belongs to.
type Kind string

const (
	KindTransientNetwork  Kind = "transient_network"
	KindFatalConfig       Kind = "fatal_config"
	KindResourceExhausted Kind = "resource_exhausted"
	KindUnknown           Kind = "unknown"
)

// Class returns the retry class for the kind.
func (k Kind) Class() Class {
	switch k {
	case KindTransientNetwork, KindResourceExhausted:
		return Transient
	default:
		return Fatal
	}
}

// Error is a classified phase error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TransientNetwork wraps err as a retryable network failure.
func TransientNetwork(op string, err error) error {
	return &Error{Kind: KindTransientNetwork, Op: op, Err: err}
}

// FatalConfig wraps err as a non-retryable configuration or validation failure.
func FatalConfig(op string, err error) error {
	return &Error{Kind: KindFatalConfig, Op: op, Err: err}
}

// ResourceExhausted wraps err as a failure to allocate an interactive resource.
func ResourceExhausted(op string, err error) error {
	return &Error{Kind: KindResourceExhausted, Op: op, Err: err}
}

// KindOf reports the taxonomy bucket of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	if isTransportError(err) {
		return KindTransientNetwork
	}
	return KindUnknown
}

// Classify reports whether err may be retried.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	// Cancellation means the run is being torn down.
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	return KindOf(err).Class()
}

// IsResourceExhausted reports whether err signals interactive resource exhaustion.
func IsResourceExhausted(err error) bool {
	return KindOf(err) == KindResourceExhausted
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
