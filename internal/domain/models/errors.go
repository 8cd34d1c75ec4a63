package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies an upstream failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	Timeout
	RateLimited
	ProtocolDesync
	Fatal
	CircuitOpen
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case RateLimited:
		return "rate_limited"
	case ProtocolDesync:
		return "protocol_desync"
	case Fatal:
		return "fatal"
	case CircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Transient reports whether the kind is retried locally.
func (k ErrorKind) Transient() bool {
	return k == Timeout || k == RateLimited || k == ProtocolDesync
}

// UpstreamError is the classified error returned across the Exchange Client boundary.
type UpstreamError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError builds a classified error.
func NewUpstreamError(kind ErrorKind, op string, err error) *UpstreamError {
	return &UpstreamError{Kind: kind, Op: op, Err: err}
}

// ErrCircuitOpen is returned when a call is rejected without a network attempt.
var ErrCircuitOpen = &UpstreamError{Kind: CircuitOpen, Op: "breaker"}

// KindOf classifies err. Unclassified errors are Fatal; deadline and
// network timeouts are Timeout.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Kind != KindUnknown {
		return ue.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}
	return Fatal
}
