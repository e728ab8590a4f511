// Package hwerr defines the error taxonomy shared by the hardware-block
// control packages.
package hwerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

// The kinds of failures a block controller can report.
const (
	KindUnknown Kind = iota
	KindNotReady
	KindTimeout
	KindBufferFull
	KindHardwareFault
	KindFrameCounterInconsistent
	KindCacheReinitFailed
)

var kindNames = map[Kind]string{
	KindUnknown:                  "unknown",
	KindNotReady:                 "not ready",
	KindTimeout:                  "timeout",
	KindBufferFull:               "buffer full",
	KindHardwareFault:            "hardware fault",
	KindFrameCounterInconsistent: "frame counter inconsistent",
	KindCacheReinitFailed:        "cache reinit failed",
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("kind(%d)", int(k))
	}

	return name
}

// Error is the error type returned by the control packages. Block and Op are
// optional and only used for the message.
type Error struct {
	Kind  Kind
	Block string
	Op    string
	Err   error
}

// Sentinels to be used with errors.Is.
var (
	ErrNotReady                 = &Error{Kind: KindNotReady}
	ErrTimeout                  = &Error{Kind: KindTimeout}
	ErrBufferFull               = &Error{Kind: KindBufferFull}
	ErrHardwareFault            = &Error{Kind: KindHardwareFault}
	ErrFrameCounterInconsistent = &Error{Kind: KindFrameCounterInconsistent}
	ErrCacheReinitFailed        = &Error{Kind: KindCacheReinitFailed}
)

// New creates an error of the given kind.
func New(kind Kind, block, op string) *Error {
	return &Error{Kind: kind, Block: block, Op: op}
}

// Wrap creates an error of the given kind that wraps a cause.
func Wrap(kind Kind, block, op string, err error) *Error {
	return &Error{Kind: kind, Block: block, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()

	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	if e.Block != "" {
		msg = e.Block + ": " + msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when the target is an *Error of the same kind. Block and
// Op are not compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain of err.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}
