package scheduling

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/metrics"
)

// Lifecycle records consultations and keeps appointment status in step with
// them.
type Lifecycle struct {
	repo    LifecycleRepository
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewLifecycle(repo LifecycleRepository, opts Options) *Lifecycle {
	opts = opts.withDefaults()
	return &Lifecycle{repo: repo, opts: opts, logger: opts.Logger, metrics: opts.Metrics}
}

// RecordConsultation stores a consultation. It does not touch the
// appointment status; see SyncStatusFromConsultation.
func (l *Lifecycle) RecordConsultation(ctx context.Context, in ConsultationInput) (*Consultation, error) {
	if in.AppointmentID <= 0 || in.DoctorID <= 0 || in.PatientID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "appointment_id, doctor_id and patient_id are required")
	}

	appt, err := l.repo.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return nil, internal("load appointment", err)
	}
	if appt.DoctorID != in.DoctorID || appt.PatientID != in.PatientID {
		return nil, newValidationError(CodeAppointmentMismatch, "doctor_id and patient_id must match appointment %d", in.AppointmentID)
	}

	c, err := l.repo.InsertConsultation(ctx, in)
	if err != nil {
		return nil, internal("insert consultation", err)
	}

	l.logger.Info("consultation recorded",
		zap.Int64("consultation_id", c.ID),
		zap.Int64("appointment_id", c.AppointmentID),
	)
	return c, nil
}

func (l *Lifecycle) GetConsultation(ctx context.Context, id int64) (*Consultation, error) {
	if id <= 0 {
		return nil, newValidationError(CodeInvalidInput, "consultation id must be a positive integer")
	}
	c, err := l.repo.GetConsultation(ctx, id)
	if err != nil {
		return nil, internal("load consultation", err)
	}
	return c, nil
}

// ConsultationForAppointment reports whether a consultation exists for the
// appointment and returns the latest one.
func (l *Lifecycle) ConsultationForAppointment(ctx context.Context, appointmentID int64) (*ConsultationLookup, error) {
	if appointmentID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "appointment id must be a positive integer")
	}
	c, err := l.repo.ConsultationByAppointment(ctx, appointmentID)
	if err != nil {
		if IsNotFound(err) {
			return &ConsultationLookup{Exists: false}, nil
		}
		return nil, internal("load consultation", err)
	}
	return &ConsultationLookup{Exists: true, Consultation: c}, nil
}

// SyncStatusFromConsultation reconciles the appointment status with its
// consultation. Running it twice gives the same result as running it once.
func (l *Lifecycle) SyncStatusFromConsultation(ctx context.Context, appointmentID int64, updatedBy *int64) (*StatusSync, error) {
	if appointmentID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "appointment id must be a positive integer")
	}

	appt, err := l.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, internal("load appointment", err)
	}

	exists := true
	if _, err := l.repo.ConsultationByAppointment(ctx, appointmentID); err != nil {
		if !IsNotFound(err) {
			return nil, internal("load consultation", err)
		}
		exists = false
	}

	prev := appt.StatusID
	changed := false

	switch {
	case exists && (prev == nil || *prev == StatusScheduled):
		changed, err = l.repo.CompleteAppointment(ctx, appointmentID)
		if err != nil {
			return nil, internal("complete appointment", err)
		}
	case !exists && prev == nil:
		changed, err = l.repo.SetInitialStatus(ctx, appointmentID)
		if err != nil {
			return nil, internal("set initial status", err)
		}
	}

	// A lost race leaves the row as another request wrote it.
	if changed || prev == nil {
		if appt, err = l.repo.GetAppointment(ctx, appointmentID); err != nil {
			return nil, internal("reload appointment", err)
		}
	}
	if appt.StatusID == nil {
		return nil, &InternalError{Op: "sync status", Err: fmt.Errorf("appointment %d has no status", appointmentID)}
	}
	current := *appt.StatusID

	name, err := l.repo.StatusName(ctx, current)
	if err != nil {
		if IsNotFound(err) {
			return nil, &InternalError{Op: "status name", Err: fmt.Errorf("appointment status %d is not seeded", current)}
		}
		return nil, internal("status name", err)
	}

	result := "unchanged"
	if changed && current == StatusCompleted {
		result = "completed"
		payload := map[string]any{"previous_status": prev}
		if updatedBy != nil {
			payload["updated_by_doctor_id"] = *updatedBy
		}
		err := l.repo.InsertEvent(ctx, EventLog{
			EventType:     EventAppointmentCompleted,
			AppointmentID: &appointmentID,
			Payload:       eventPayload(l.logger, EventAppointmentCompleted, payload),
		})
		if err != nil {
			l.logger.Warn("failed to record completion event", zap.Int64("appointment_id", appointmentID), zap.Error(err))
		}
	}
	l.metrics.ObserveStatusSync(result)

	l.logger.Info("appointment status synced",
		zap.Int64("appointment_id", appointmentID),
		zap.Int64("status_id", current),
		zap.Bool("consultation_exists", exists),
		zap.Bool("changed", changed),
	)

	return &StatusSync{
		AppointmentID:      appointmentID,
		PreviousStatus:     prev,
		NewStatus:          current,
		StatusName:         name,
		ConsultationExists: exists,
	}, nil
}

// ListDoctorAppointments lists the doctor's Scheduled appointments, optionally
// bounded by date.
func (l *Lifecycle) ListDoctorAppointments(ctx context.Context, doctorID int64, from, to *Date) ([]AppointmentView, error) {
	if doctorID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "doctor id must be a positive integer")
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, newValidationError(CodeInvalidDate, "end_date %s is before start_date %s", to, from)
	}
	views, err := l.repo.ListDoctorAppointments(ctx, doctorID, from, to)
	if err != nil {
		return nil, internal("list doctor appointments", err)
	}
	return views, nil
}

// ListPatientAppointments lists the patient's non-cancelled appointments from
// today onwards.
func (l *Lifecycle) ListPatientAppointments(ctx context.Context, patientID int64) ([]AppointmentView, error) {
	if patientID <= 0 {
		return nil, newValidationError(CodeInvalidInput, "patient_id must be a positive integer")
	}
	views, err := l.repo.ListPatientAppointments(ctx, patientID, l.opts.today())
	if err != nil {
		return nil, internal("list patient appointments", err)
	}
	return views, nil
}

// VerifyStatuses fails when the status enumeration is not seeded.
func (l *Lifecycle) VerifyStatuses(ctx context.Context) error {
	names, err := l.repo.StatusNames(ctx)
	if err != nil {
		return fmt.Errorf("load appointment statuses: %w", err)
	}
	for _, id := range []int64{StatusScheduled, StatusCompleted, StatusCancelled} {
		if _, ok := names[id]; !ok {
			return fmt.Errorf("appointment status %d missing, run migrations", id)
		}
	}
	return nil
}
