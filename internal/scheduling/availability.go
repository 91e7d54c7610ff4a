package scheduling

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/medcare-scheduling/internal/metrics"
)

// slotReason judges one slot for a date. The resolver, the single-slot check
// and the booking engine all go through it.
func slotReason(s *ScheduleSlot, booked map[int64]struct{}) SlotReason {
	switch {
	case s == nil:
		return ReasonNotInSchedule
	case !s.IsActive:
		return ReasonScheduleInactive
	}
	if _, ok := booked[s.SlotID]; ok {
		return ReasonAlreadyBooked
	}
	return ReasonAvailable
}

type AvailabilityResolver struct {
	repo    AvailabilityRepository
	opts    Options
	horizon Horizon
	metrics *metrics.Collector
}

func NewAvailabilityResolver(repo AvailabilityRepository, opts Options) *AvailabilityResolver {
	opts = opts.withDefaults()
	return &AvailabilityResolver{
		repo:    repo,
		opts:    opts,
		horizon: Horizon{Days: opts.HorizonDays},
		metrics: opts.Metrics,
	}
}

// daySlots lists the doctor's active slots for date with their booking state.
func (r *AvailabilityResolver) daySlots(ctx context.Context, doctorID int64, date Date) ([]SlotAvailability, int, error) {
	rows, err := r.repo.ActiveScheduleSlots(ctx, doctorID, date.Weekday())
	if err != nil {
		return nil, 0, internal("load schedule", err)
	}
	booked, err := r.repo.BookedSlotIDs(ctx, doctorID, date)
	if err != nil {
		return nil, 0, internal("load booked slots", err)
	}

	slots := make([]SlotAvailability, 0, len(rows))
	available := 0
	for i := range rows {
		free := slotReason(&rows[i], booked) == ReasonAvailable
		status := SlotStatusBooked
		if free {
			status = SlotStatusAvailable
			available++
		}
		slots = append(slots, SlotAvailability{
			ScheduleID:  rows[i].ScheduleID,
			SlotID:      rows[i].SlotID,
			StartTime:   rows[i].StartTime,
			EndTime:     rows[i].EndTime,
			IsAvailable: free,
			Status:      status,
		})
	}
	return slots, available, nil
}

// ResolveAvailability lists a doctor's scheduled slots on date and whether
// each is still free.
func (r *AvailabilityResolver) ResolveAvailability(ctx context.Context, doctorID int64, date Date) (*DayAvailability, error) {
	ctx, span := tracer.Start(ctx, "scheduling.ResolveAvailability", trace.WithAttributes(
		attribute.Int64("doctor_id", doctorID),
		attribute.String("date", date.String()),
	))
	defer span.End()
	r.metrics.ObserveAvailability("day")

	if doctorID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "doctor id must be a positive integer")
	}
	if err := r.horizon.Check(r.opts.today(), date); err != nil {
		return nil, err
	}

	doctor, err := r.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, internal("load doctor", err)
	}

	slots, available, err := r.daySlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	return &DayAvailability{
		Doctor:         *doctor,
		Date:           date,
		DayOfWeek:      date.Weekday(),
		DayName:        DayName(date.Weekday()),
		Slots:          slots,
		AvailableCount: available,
		TotalSlots:     len(slots),
	}, nil
}

// ResolveWeekAvailability covers today and the following HorizonDays-1 days.
// Days without schedule rows are left out.
func (r *AvailabilityResolver) ResolveWeekAvailability(ctx context.Context, doctorID int64) (*WeekAvailability, error) {
	ctx, span := tracer.Start(ctx, "scheduling.ResolveWeekAvailability", trace.WithAttributes(
		attribute.Int64("doctor_id", doctorID),
	))
	defer span.End()
	r.metrics.ObserveAvailability("week")

	if doctorID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "doctor id must be a positive integer")
	}

	doctor, err := r.repo.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, internal("load doctor", err)
	}

	has, err := r.repo.HasActiveSchedules(ctx, doctorID)
	if err != nil {
		return nil, internal("check schedules", err)
	}
	if !has {
		return nil, &NotFoundError{Resource: "active schedule"}
	}

	today := r.opts.today()
	days := r.horizon.Days
	week := &WeekAvailability{
		Doctor: *doctor,
		SchedulePeriod: SchedulePeriod{
			From: today,
			To:   today.AddDays(days - 1),
		},
		Availability: []WeekDay{},
	}

	for i := 0; i < days; i++ {
		date := today.AddDays(i)
		slots, available, err := r.daySlots(ctx, doctorID, date)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			continue
		}
		week.Availability = append(week.Availability, WeekDay{
			Date:           date,
			DayOfWeek:      date.Weekday(),
			DayName:        DayName(date.Weekday()),
			Slots:          slots,
			AvailableSlots: available,
			TotalSlots:     len(slots),
		})
	}
	return week, nil
}

// CheckSlotAvailability judges a single (doctor, slot, date).
func (r *AvailabilityResolver) CheckSlotAvailability(ctx context.Context, doctorID, slotID int64, date Date) (*SlotCheck, error) {
	ctx, span := tracer.Start(ctx, "scheduling.CheckSlotAvailability", trace.WithAttributes(
		attribute.Int64("doctor_id", doctorID),
		attribute.Int64("slot_id", slotID),
		attribute.String("date", date.String()),
	))
	defer span.End()
	r.metrics.ObserveAvailability("slot")

	if doctorID <= 0 || slotID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "doctor_id and slot_id must be positive integers")
	}
	if err := r.horizon.Check(r.opts.today(), date); err != nil {
		return nil, err
	}
	if _, err := r.repo.GetDoctor(ctx, doctorID); err != nil {
		return nil, internal("load doctor", err)
	}

	sched, err := r.repo.ScheduleForSlot(ctx, doctorID, date.Weekday(), slotID)
	if err != nil {
		return nil, internal("load schedule", err)
	}
	booked, err := r.repo.BookedSlotIDs(ctx, doctorID, date)
	if err != nil {
		return nil, internal("load booked slots", err)
	}

	reason := slotReason(sched, booked)
	check := &SlotCheck{
		IsAvailable: reason == ReasonAvailable,
		Reason:      reason,
	}
	if sched != nil {
		check.SlotDetails = sched
	}
	return check, nil
}
