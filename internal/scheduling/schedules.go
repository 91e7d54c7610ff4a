package scheduling

import (
	"context"

	"go.uber.org/zap"
)

// ScheduleStore manages doctors' weekly recurring schedule rows.
type ScheduleStore struct {
	repo    ScheduleRepository
	catalog *Catalog
	logger  *zap.Logger
}

func NewScheduleStore(repo ScheduleRepository, catalog *Catalog, opts Options) *ScheduleStore {
	opts = opts.withDefaults()
	return &ScheduleStore{repo: repo, catalog: catalog, logger: opts.Logger}
}

func validDayOfWeek(d int) bool { return d >= 0 && d <= 6 }

func (s *ScheduleStore) checkSlot(ctx context.Context, slotID int64) error {
	if slotID <= 0 {
		return newValidationError(CodeInvalidSlot, "slot_id must be a positive integer")
	}
	if _, err := s.catalog.SlotByID(ctx, slotID); err != nil {
		if IsNotFound(err) {
			return newValidationError(CodeInvalidSlot, "time slot %d does not exist", slotID)
		}
		return err
	}
	return nil
}

// AddSchedule creates an active schedule row unless IsActive is explicitly
// false.
func (s *ScheduleStore) AddSchedule(ctx context.Context, in NewSchedule) (*DoctorSchedule, error) {
	if in.DoctorID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "doctor_id must be a positive integer")
	}
	if in.DayOfWeek == nil || !validDayOfWeek(*in.DayOfWeek) {
		return nil, newValidationError(CodeInvalidDayOfWeek, "day_of_week is required and must be between 0 and 6")
	}
	if err := s.checkSlot(ctx, in.SlotID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDoctor(ctx, in.DoctorID); err != nil {
		return nil, internal("load doctor", err)
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	created, err := s.repo.CreateSchedule(ctx, DoctorSchedule{
		DoctorID:  in.DoctorID,
		DayOfWeek: *in.DayOfWeek,
		SlotID:    in.SlotID,
		IsActive:  active,
	})
	if err != nil {
		return nil, internal("create schedule", err)
	}

	s.logger.Info("schedule added",
		zap.Int64("schedule_id", created.ID),
		zap.Int64("doctor_id", created.DoctorID),
		zap.Int("day_of_week", created.DayOfWeek),
		zap.Int64("slot_id", created.SlotID),
	)
	return created, nil
}

func (s *ScheduleStore) ListSchedules(ctx context.Context, f ScheduleFilter) ([]ScheduleView, error) {
	if f.DayOfWeek != nil && !validDayOfWeek(*f.DayOfWeek) {
		return nil, newValidationError(CodeInvalidDayOfWeek, "day_of_week must be between 0 and 6")
	}
	views, err := s.repo.ListScheduleViews(ctx, f)
	if err != nil {
		return nil, internal("list schedules", err)
	}
	return views, nil
}

// UpdateSchedule changes only the supplied fields and always bumps
// updated_at.
func (s *ScheduleStore) UpdateSchedule(ctx context.Context, id int64, upd ScheduleUpdate) (*ScheduleView, error) {
	if id <= 0 {
		return nil, newValidationError(CodeInvalidInput, "schedule id must be a positive integer")
	}
	if upd.empty() {
		return nil, newValidationError(CodeNoFields, "no fields to update")
	}
	if upd.DayOfWeek != nil && !validDayOfWeek(*upd.DayOfWeek) {
		return nil, newValidationError(CodeInvalidDayOfWeek, "day_of_week must be between 0 and 6")
	}
	if upd.SlotID != nil {
		if err := s.checkSlot(ctx, *upd.SlotID); err != nil {
			return nil, err
		}
	}

	if _, err := s.repo.UpdateSchedule(ctx, id, upd); err != nil {
		return nil, internal("update schedule", err)
	}

	view, err := s.repo.GetScheduleView(ctx, id)
	if err != nil {
		return nil, internal("load schedule", err)
	}
	return view, nil
}

func (s *ScheduleStore) DeleteSchedule(ctx context.Context, id int64) error {
	if id <= 0 {
		return newValidationError(CodeInvalidInput, "schedule id must be a positive integer")
	}
	if err := s.repo.DeleteSchedule(ctx, id); err != nil {
		return internal("delete schedule", err)
	}
	s.logger.Info("schedule deleted", zap.Int64("schedule_id", id))
	return nil
}
