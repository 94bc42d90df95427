package booking

import "fmt"

// Code is a machine-readable reason returned to booking callers.
type Code string

const (
	CodePackNotFound             Code = "PACK_NOT_FOUND"
	CodePackExpired              Code = "PACK_EXPIRED"
	CodeScheduledAfterExpiration Code = "SCHEDULED_AFTER_EXPIRATION"
	CodePackNotActive            Code = "PACK_NOT_ACTIVE"
	CodeNoRemainingSessions      Code = "NO_REMAINING_SESSIONS"
	CodeSeatNotActive            Code = "SEAT_NOT_ACTIVE"

	CodeInvalidTimeRange     Code = "INVALID_TIME_RANGE"
	CodeInvalidSlotSize      Code = "INVALID_SLOT_SIZE"
	CodeMentorNotFound       Code = "MENTOR_NOT_FOUND"
	CodeCalendarNotConnected Code = "CALENDAR_NOT_CONNECTED"
	CodeOutsideWorkingHours  Code = "OUTSIDE_WORKING_HOURS"
	CodeTimeSlotUnavailable  Code = "TIME_SLOT_UNAVAILABLE"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInvariant  Kind = "invariant"
)

var codeKinds = map[Code]Kind{
	CodePackNotFound:             KindNotFound,
	CodePackExpired:              KindConflict,
	CodeScheduledAfterExpiration: KindValidation,
	CodePackNotActive:            KindConflict,
	CodeNoRemainingSessions:      KindConflict,
	CodeSeatNotActive:            KindConflict,
	CodeInvalidTimeRange:         KindValidation,
	CodeInvalidSlotSize:          KindValidation,
	CodeMentorNotFound:           KindNotFound,
	CodeCalendarNotConnected:     KindConflict,
	CodeOutsideWorkingHours:      KindValidation,
	CodeTimeSlotUnavailable:      KindConflict,
}

// Error is a caller-visible booking failure. Infrastructure failures are
// never reported as *Error; they are returned wrapped and may be retried.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func (e *Error) Kind() Kind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindInvariant
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrTimeSlotUnavailable and friends are match targets for errors.Is.
var (
	ErrPackNotFound        = &Error{Code: CodePackNotFound}
	ErrNoRemainingSessions = &Error{Code: CodeNoRemainingSessions}
	ErrTimeSlotUnavailable = &Error{Code: CodeTimeSlotUnavailable}
	ErrOutsideWorkingHours = &Error{Code: CodeOutsideWorkingHours}
)
