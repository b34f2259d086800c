package appointments

import "errors"

// Kind classifies every failure the engine can report.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidationFailed
	KindInvalidProvider
	KindSelfBookingNotAllowed
	KindPastDateNotAllowed
	KindSlotUnavailable
	KindNotFound
	KindForbidden
	KindAlreadyCanceled
	KindCancellationWindowExpired
)

func (k Kind) String() string {
	switch k {
	case KindValidationFailed:
		return "ValidationFailed"
	case KindInvalidProvider:
		return "InvalidProvider"
	case KindSelfBookingNotAllowed:
		return "SelfBookingNotAllowed"
	case KindPastDateNotAllowed:
		return "PastDateNotAllowed"
	case KindSlotUnavailable:
		return "SlotUnavailable"
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindAlreadyCanceled:
		return "AlreadyCanceled"
	case KindCancellationWindowExpired:
		return "CancellationWindowExpired"
	default:
		return "InfrastructureError"
	}
}

// Error is a classified engine error. Msg is safe to show to clients; Err is the cause and
// is only set for infrastructure failures.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, ErrSlotUnavailable).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidationFailed          = &Error{Kind: KindValidationFailed, Msg: "Validation failed"}
	ErrInvalidProvider           = &Error{Kind: KindInvalidProvider, Msg: "You can only create appointments with providers"}
	ErrSelfBooking               = &Error{Kind: KindSelfBookingNotAllowed, Msg: "You can't create an appointment with yourself"}
	ErrPastDate                  = &Error{Kind: KindPastDateNotAllowed, Msg: "Past dates are not permitted"}
	ErrSlotUnavailable           = &Error{Kind: KindSlotUnavailable, Msg: "Appointment date is not available"}
	ErrNotFound                  = &Error{Kind: KindNotFound, Msg: "Appointment not found"}
	ErrForbidden                 = &Error{Kind: KindForbidden, Msg: "You don't have permission to cancel this appointment"}
	ErrAlreadyCanceled           = &Error{Kind: KindAlreadyCanceled, Msg: "Appointment already canceled"}
	ErrCancellationWindowExpired = &Error{Kind: KindCancellationWindowExpired, Msg: "You can only cancel appointments 2 hours in advance"}
)

func infraError(op string, err error) error {
	return &Error{Kind: KindInfrastructure, Msg: op, Err: err}
}

// KindOf returns the Kind of err; unclassified errors are infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}
