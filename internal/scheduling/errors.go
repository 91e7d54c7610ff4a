package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

// Validation codes.
const (
	CodeInvalidInput        = "invalid_input"
	CodeInvalidDate         = "invalid_date"
	CodeDateInPast          = "date_in_past"
	CodeDateTooFarAhead     = "date_too_far_ahead"
	CodeInvalidDayOfWeek    = "invalid_day_of_week"
	CodeInvalidSlot         = "invalid_slot"
	CodeNoFields            = "no_fields_to_update"
	CodeSlotNotInSchedule   = "slot_not_in_schedule"
	CodeAppointmentMismatch = "appointment_mismatch"
)

// Conflict codes.
const (
	CodeScheduleExists    = "schedule_exists"
	CodeDuplicateBooking  = "duplicate_booking"
	CodeSlotAlreadyBooked = "slot_already_booked"
	CodeSlotBeingBooked   = "slot_being_booked"
	CodeBookingConflict   = "booking_conflict"
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func newValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity. Resource is a human readable noun
// such as "doctor" or "time slot".
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// Code returns a snake_case code such as "time_slot_not_found".
func (e *NotFoundError) Code() string {
	return strings.ReplaceAll(e.Resource, " ", "_") + "_not_found"
}

// ConflictError reports a uniqueness or concurrency conflict.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InternalError wraps an infrastructure failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }

// internal wraps err as an InternalError unless it already is one of the
// typed errors above.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTyped(err) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

func isTyped(err error) bool {
	var (
		v *ValidationError
		n *NotFoundError
		c *ConflictError
		i *InternalError
	)
	return errors.As(err, &v) || errors.As(err, &n) || errors.As(err, &c) || errors.As(err, &i)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
