// Package vasilierr defines the error kinds the engine's workers recognize
// and recover from, and the handful of helpers used to attach structured
// context to them before they are logged.
package vasilierr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error so callers can decide whether it is fatal
// (Configuration, at startup only) or something a worker loop swallows and
// continues past.
type Kind string

// Recognized error kinds. See spec §7.
const (
	Configuration    Kind = "configuration"
	NoRadios         Kind = "no_radios"
	ScanFailed       Kind = "scan_failed"
	AssociationFail  Kind = "association_failed"
	MeasurementFail  Kind = "measurement_failed"
	MonitorGaveUp    Kind = "monitor_gave_up"
	GatewayBindFail  Kind = "gateway_bind_failed"
	HostCallFailed   Kind = "host_call_failed"
)

// Error wraps an underlying cause with a Kind and optional key/value context,
// in the spirit of the teacher's common/zaperr: a structured error that still
// satisfies the standard error interface.
type Error struct {
	Kind Kind
	msg  string
	kv   []interface{}
	err  error
}

// New creates an Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap attaches a Kind to an existing error, preserving it as the Cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, msg: msg, err: errors.Wrap(err, msg)}
}

// With appends structured key/value context, mirroring zaperr.Errorw.
func (e *Error) With(kv ...interface{}) *Error {
	e.kv = append(e.kv, kv...)
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.msg
}

// Cause unwraps to the underlying error, if any, for errors.Cause callers.
func (e *Error) Cause() error {
	return e.err
}

// KV returns the accumulated key/value pairs for structured logging.
func (e *Error) KV() []interface{} {
	return e.kv
}

// HostCallFailedf builds a HostCallFailed error naming the operation that
// failed, matching spec §7's HostCallFailed(op, reason).
func HostCallFailedf(op string, err error) *Error {
	return Wrap(HostCallFailed, err, fmt.Sprintf("host call %q failed", op)).With("op", op)
}
