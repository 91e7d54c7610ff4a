package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/metrics"
	redisclient "github.com/hackgods/medcare-scheduling/internal/redis"
)

// SlotLockKey names the redis lock guarding one doctor/slot/date.
func SlotLockKey(doctorID, slotID int64, date Date) string {
	return fmt.Sprintf("lock:slot:%d:%d:%s", doctorID, slotID, date)
}

// BookingEngine validates and commits slot bookings.
type BookingEngine struct {
	repo    BookingRepository
	locker  redisclient.Locker
	opts    Options
	horizon Horizon
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewBookingEngine builds an engine. A nil locker books without the redis
// lock and relies on the transaction alone.
func NewBookingEngine(repo BookingRepository, locker redisclient.Locker, opts Options) *BookingEngine {
	opts = opts.withDefaults()
	return &BookingEngine{
		repo:    repo,
		locker:  locker,
		opts:    opts,
		horizon: Horizon{Days: opts.HorizonDays},
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

func bookingOutcome(err error) string {
	var (
		v *ValidationError
		n *NotFoundError
		c *ConflictError
	)
	switch {
	case err == nil:
		return "booked"
	case errors.As(err, &v):
		return "validation"
	case errors.As(err, &n):
		return "not_found"
	case errors.As(err, &c):
		return "conflict"
	default:
		return "error"
	}
}

// BookSlot books req.SlotID for the patient. Preconditions are checked in a
// fixed order and the first failure is returned.
func (e *BookingEngine) BookSlot(ctx context.Context, req BookingRequest) (*AppointmentView, error) {
	ctx, span := tracer.Start(ctx, "scheduling.BookSlot", trace.WithAttributes(
		attribute.Int64("patient_id", req.PatientID),
		attribute.Int64("doctor_id", req.DoctorID),
		attribute.Int64("slot_id", req.SlotID),
		attribute.String("appointment_date", req.AppointmentDate),
	))
	defer span.End()

	start := time.Now()
	view, err := e.bookSlot(ctx, req)
	outcome := bookingOutcome(err)
	e.metrics.ObserveBooking(outcome, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))

	if err != nil {
		span.RecordError(err)
		if outcome == "error" {
			span.SetStatus(codes.Error, err.Error())
			e.logger.Error("booking failed", zap.Error(err))
		}
		return nil, err
	}
	return view, nil
}

func (e *BookingEngine) bookSlot(ctx context.Context, req BookingRequest) (*AppointmentView, error) {
	// 1. inputs present
	if req.PatientID <= 0 || req.DoctorID <= 0 || req.SlotID <= 0 || req.AppointmentDate == "" {
		return nil, newValidationError(CodeInvalidInput, "patient_id, doctor_id, appointment_date and slot_id are required")
	}
	date, err := ParseDate(req.AppointmentDate)
	if err != nil {
		return nil, err
	}

	// 2. horizon
	if err := e.horizon.Check(e.opts.today(), date); err != nil {
		return nil, err
	}

	var appointmentID int64
	ran := false
	book := func(ctx context.Context) error {
		ran = true
		id, err := e.commit(ctx, req, date)
		appointmentID = id
		return err
	}

	if e.locker == nil {
		err = book(ctx)
	} else {
		key := SlotLockKey(req.DoctorID, req.SlotID, date)
		err = e.locker.WithSlotLock(ctx, key, book)
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			e.metrics.ObserveLockContention()
			return nil, &ConflictError{Code: CodeSlotBeingBooked, Message: "slot is currently being booked, please retry"}
		case err != nil && !ran && ctx.Err() == nil:
			// Redis unavailable; book on the transaction alone.
			e.logger.Warn("slot lock unavailable, booking without it", zap.String("key", key), zap.Error(err))
			err = book(ctx)
		}
	}
	if err != nil {
		return nil, err
	}

	view, err := e.repo.GetAppointmentView(ctx, appointmentID)
	if err != nil {
		return nil, &InternalError{Op: "load booked appointment", Err: err}
	}

	e.logger.Info("appointment booked",
		zap.Int64("appointment_id", view.ID),
		zap.Int64("patient_id", view.PatientID),
		zap.Int64("doctor_id", view.DoctorID),
		zap.Int64("slot_id", view.SlotID),
		zap.String("date", view.Date.String()),
	)
	return view, nil
}

// commit runs checks 3 to 7 and the insert inside one serializable
// transaction.
func (e *BookingEngine) commit(ctx context.Context, req BookingRequest, date Date) (int64, error) {
	tx, err := e.repo.BeginBooking(ctx)
	if err != nil {
		return 0, internal("begin booking", err)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			e.logger.Warn("booking rollback failed", zap.Error(rbErr))
		}
	}()

	// 3. patient exists
	ok, err := tx.PatientExists(ctx, req.PatientID)
	if err != nil {
		return 0, internal("check patient", err)
	}
	if !ok {
		return 0, &NotFoundError{Resource: "patient"}
	}

	// 4. doctor exists
	ok, err = tx.DoctorExists(ctx, req.DoctorID)
	if err != nil {
		return 0, internal("check doctor", err)
	}
	if !ok {
		return 0, &NotFoundError{Resource: "doctor"}
	}

	// 5. one appointment per patient, doctor and day
	dup, err := tx.HasPatientBooking(ctx, req.PatientID, req.DoctorID, date)
	if err != nil {
		return 0, internal("check existing booking", err)
	}
	if dup {
		return 0, &ConflictError{Code: CodeDuplicateBooking, Message: "patient already has an appointment with this doctor on this date"}
	}

	// 6 and 7. slot scheduled and free
	sched, err := tx.ScheduleForSlot(ctx, req.DoctorID, date.Weekday(), req.SlotID)
	if err != nil {
		return 0, internal("load schedule", err)
	}
	booked, err := tx.BookedSlotIDs(ctx, req.DoctorID, date)
	if err != nil {
		return 0, internal("load booked slots", err)
	}
	switch slotReason(sched, booked) {
	case ReasonNotInSchedule, ReasonScheduleInactive:
		return 0, newValidationError(CodeSlotNotInSchedule, "doctor has no active schedule for slot %d on %s", req.SlotID, DayName(date.Weekday()))
	case ReasonAlreadyBooked:
		return 0, &ConflictError{Code: CodeSlotAlreadyBooked, Message: "slot is already booked for this date"}
	}

	status := StatusScheduled
	appt, err := tx.InsertAppointment(ctx, Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      date,
		SlotID:    req.SlotID,
		StatusID:  &status,
	})
	if err != nil {
		return 0, internal("insert appointment", err)
	}

	payload := eventPayload(e.logger, EventAppointmentCreated, map[string]any{
		"patient_id":       req.PatientID,
		"doctor_id":        req.DoctorID,
		"slot_id":          req.SlotID,
		"appointment_date": date.String(),
	})
	if err := tx.InsertEvent(ctx, EventLog{
		EventType:     EventAppointmentCreated,
		AppointmentID: &appt.ID,
		Payload:       payload,
	}); err != nil {
		return 0, internal("insert event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, internal("commit booking", err)
	}
	finished = true

	return appt.ID, nil
}
