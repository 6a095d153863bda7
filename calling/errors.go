package calling

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrDisconnected indicates media connectivity was lost and could not be
// reestablished.
var ErrDisconnected = errors.New("call media disconnected")

// An AssertionError indicates an invariant was violated. It is a programming
// defect; the affected call is terminated defensively and the process
// continues.
type AssertionError struct {
	Reason string
}

func (e *AssertionError) Error() string {
	return "assertion failure: " + e.Reason
}

// An ExternalError wraps a failure reported by a collaborator (the signaling
// channel or the media transport).
type ExternalError struct {
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("external failure: %v", e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// A TimeoutError indicates the connecting timeout elapsed before the call
// reached StateConnected. It surfaces to the user as a "no answer"
// condition.
type TimeoutError struct {
	Reason string
}

func (e *TimeoutError) Error() string {
	return "call timed out: " + e.Reason
}

// An ObsoleteCallError indicates an operation targeted a call that is no
// longer active. It is never user visible; operations carrying it abort
// silently.
type ObsoleteCallError struct {
	Reason string
}

func (e *ObsoleteCallError) Error() string {
	return "obsolete call: " + e.Reason
}

func newObsolete(format string, args ...interface{}) *ObsoleteCallError {
	return &ObsoleteCallError{Reason: fmt.Sprintf(format, args...)}
}

// IsObsolete reports whether the error indicates the call it pertained to
// was superseded or torn down.
func IsObsolete(err error) bool {
	var obsolete *ObsoleteCallError
	return errors.As(err, &obsolete)
}

// IsTimeout reports whether the error is the connecting timeout.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// IsAssertion reports whether the error is an invariant violation.
func IsAssertion(err error) bool {
	var assertion *AssertionError
	return errors.As(err, &assertion)
}

// asCallError normalizes any failure from an asynchronous step into the
// call error taxonomy. Errors already in the taxonomy pass through;
// everything else is treated as an external failure.
func asCallError(err error) error {
	if err == nil {
		return nil
	}
	if IsObsolete(err) || IsTimeout(err) || IsAssertion(err) || errors.Is(err, ErrDisconnected) {
		return err
	}
	return &ExternalError{Err: err}
}
