package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/medcare-scheduling/internal/db"
)

const (
	constraintScheduleUnique       = "uq_doctor_schedules_doctor_day_slot"
	constraintDoctorSlotDateUnique = "uq_appointments_doctor_slot_date"
	constraintPatientDoctorUnique  = "uq_appointments_patient_doctor_date"
)

// PgRepository implements every repository interface of this package on
// PostgreSQL.
type PgRepository struct {
	pool db.Pool
	queries
}

func NewPgRepository(pool db.Pool) *PgRepository {
	return &PgRepository{pool: pool, queries: queries{db: pool}}
}

// queries holds the statements that run both on the pool and inside the
// booking transaction.
type queries struct {
	db db.DBTX
}

// Helpers

func scanTimeSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	if err := row.Scan(&s.ID, &s.Number, &s.StartTime, &s.EndTime); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSchedule(row pgx.Row) (*DoctorSchedule, error) {
	var s DoctorSchedule
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.DayOfWeek,
		&s.SlotID,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "schedule"}
		}
		return nil, err
	}
	return &s, nil
}

func scanScheduleView(row pgx.Row) (*ScheduleView, error) {
	var v ScheduleView
	err := row.Scan(
		&v.ID,
		&v.DoctorID,
		&v.DayOfWeek,
		&v.SlotID,
		&v.IsActive,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.DoctorName,
		&v.SlotNumber,
		&v.StartTime,
		&v.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "schedule"}
		}
		return nil, err
	}
	v.DayName = DayName(v.DayOfWeek)
	return &v, nil
}

func scanScheduleSlot(row pgx.Row) (*ScheduleSlot, error) {
	var s ScheduleSlot
	if err := row.Scan(&s.ScheduleID, &s.SlotID, &s.StartTime, &s.EndTime, &s.IsActive); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&date,
		&a.SlotID,
		&a.StatusID,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, err
	}
	a.Date = DateOf(date)
	return &a, nil
}

func scanAppointmentView(row pgx.Row) (*AppointmentView, error) {
	var v AppointmentView
	var date time.Time
	err := row.Scan(
		&v.ID,
		&v.PatientID,
		&v.PatientName,
		&v.PatientPhone,
		&v.DoctorID,
		&v.DoctorName,
		&v.Specialization,
		&date,
		&v.SlotID,
		&v.StartTime,
		&v.EndTime,
		&v.StatusID,
		&v.StatusName,
		&v.ConsultationFee,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, err
	}
	v.Date = DateOf(date)
	return &v, nil
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(
		&c.ID,
		&c.AppointmentID,
		&c.DoctorID,
		&c.PatientID,
		&c.BloodPressure,
		&c.Temperature,
		&c.OxygenSaturation,
		&c.Diagnosis,
		&c.ConsultationDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "consultation"}
		}
		return nil, err
	}
	return &c, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func dateArg(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// mapWriteError turns constraint and serialization failures into typed
// errors.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case db.IsSerializationFailure(err):
		return &ConflictError{Code: CodeBookingConflict, Message: "booking conflicted with a concurrent request"}
	case db.IsUniqueViolation(err):
		switch db.ConstraintName(err) {
		case constraintDoctorSlotDateUnique:
			return &ConflictError{Code: CodeSlotAlreadyBooked, Message: "slot is already booked for this date"}
		case constraintPatientDoctorUnique:
			return &ConflictError{Code: CodeDuplicateBooking, Message: "patient already has an appointment with this doctor on this date"}
		case constraintScheduleUnique:
			return &ConflictError{Code: CodeScheduleExists, Message: "doctor already has this slot on this day"}
		}
	case db.IsForeignKeyViolation(err):
		name := db.ConstraintName(err)
		switch {
		case strings.Contains(name, "doctor"):
			return &NotFoundError{Resource: "doctor"}
		case strings.Contains(name, "patient"):
			return &NotFoundError{Resource: "patient"}
		case strings.Contains(name, "appointment"):
			return &NotFoundError{Resource: "appointment"}
		case strings.Contains(name, "slot"):
			return newValidationError(CodeInvalidSlot, "unknown time slot")
		}
	}
	return err
}

// Shared queries

func (q queries) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	var d Doctor
	err := q.db.QueryRow(ctx, `
		SELECT d.doctor_id, d.first_name || ' ' || d.last_name, COALESCE(s.name, ''), d.consultation_fee::float8
		FROM doctors d
		LEFT JOIN specializations s ON s.specialization_id = d.specialization_id
		WHERE d.doctor_id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Specialization, &d.ConsultationFee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "doctor"}
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return &d, nil
}

func (q queries) ScheduleForSlot(ctx context.Context, doctorID int64, dayOfWeek int, slotID int64) (*ScheduleSlot, error) {
	row := q.db.QueryRow(ctx, `
		SELECT ds.schedule_id, ds.slot_id, to_char(ts.start_time, 'HH24:MI:SS'), to_char(ts.end_time, 'HH24:MI:SS'), ds.is_active
		FROM doctor_schedules ds
		JOIN time_slots ts ON ts.slot_id = ds.slot_id
		WHERE ds.doctor_id = $1
		  AND ds.day_of_week = $2
		  AND ds.slot_id = $3
	`, doctorID, dayOfWeek, slotID)

	s, err := scanScheduleSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("schedule for slot: %w", mapWriteError(err))
	}
	return s, nil
}

func (q queries) BookedSlotIDs(ctx context.Context, doctorID int64, date Date) (map[int64]struct{}, error) {
	rows, err := q.db.Query(ctx, `
		SELECT slot_id
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status_id IS DISTINCT FROM 3
	`, doctorID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("booked slots: %w", mapWriteError(err))
	}
	defer rows.Close()

	booked := make(map[int64]struct{})
	for rows.Next() {
		var slotID int64
		if err := rows.Scan(&slotID); err != nil {
			return nil, err
		}
		booked[slotID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booked slots: %w", mapWriteError(err))
	}
	return booked, nil
}

func (q queries) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", mapWriteError(err))
	}
	return nil
}

func (q queries) exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var ok bool
	if err := q.db.QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, mapWriteError(err)
	}
	return ok, nil
}

// Time slots

func (r *PgRepository) ListTimeSlots(ctx context.Context) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slot_id, slot_number, to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS')
		FROM time_slots
		ORDER BY slot_number
	`)
	if err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return collect(rows, scanTimeSlot)
}

// Schedules

const scheduleColumns = `schedule_id, doctor_id, day_of_week, slot_id, is_active, created_at, updated_at`

const scheduleViewSelect = `
	SELECT ds.schedule_id, ds.doctor_id, ds.day_of_week, ds.slot_id, ds.is_active, ds.created_at, ds.updated_at,
	       d.first_name || ' ' || d.last_name, ts.slot_number,
	       to_char(ts.start_time, 'HH24:MI:SS'), to_char(ts.end_time, 'HH24:MI:SS')
	FROM doctor_schedules ds
	JOIN doctors d ON d.doctor_id = ds.doctor_id
	JOIN time_slots ts ON ts.slot_id = ds.slot_id
`

func (r *PgRepository) CreateSchedule(ctx context.Context, s DoctorSchedule) (*DoctorSchedule, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctor_schedules (doctor_id, day_of_week, slot_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+scheduleColumns, s.DoctorID, s.DayOfWeek, s.SlotID, s.IsActive)

	created, err := scanSchedule(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) GetScheduleView(ctx context.Context, id int64) (*ScheduleView, error) {
	return scanScheduleView(r.pool.QueryRow(ctx, scheduleViewSelect+` WHERE ds.schedule_id = $1`, id))
}

func (r *PgRepository) ListScheduleViews(ctx context.Context, f ScheduleFilter) ([]ScheduleView, error) {
	var (
		where []string
		args  []any
	)
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("ds.doctor_id = $%d", len(args)))
	}
	if f.DayOfWeek != nil {
		args = append(args, *f.DayOfWeek)
		where = append(where, fmt.Sprintf("ds.day_of_week = $%d", len(args)))
	}

	sql := scheduleViewSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY ds.day_of_week, ts.start_time"

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collect(rows, scanScheduleView)
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id int64, upd ScheduleUpdate) (*DoctorSchedule, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctor_schedules
		SET day_of_week = COALESCE($2, day_of_week),
		    slot_id = COALESCE($3, slot_id),
		    is_active = COALESCE($4, is_active),
		    updated_at = now()
		WHERE schedule_id = $1
		RETURNING `+scheduleColumns, id, upd.DayOfWeek, upd.SlotID, upd.IsActive)

	updated, err := scanSchedule(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) DeleteSchedule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM doctor_schedules WHERE schedule_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "schedule"}
	}
	return nil
}

// Availability

func (r *PgRepository) ActiveScheduleSlots(ctx context.Context, doctorID int64, dayOfWeek int) ([]ScheduleSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ds.schedule_id, ds.slot_id, to_char(ts.start_time, 'HH24:MI:SS'), to_char(ts.end_time, 'HH24:MI:SS'), ds.is_active
		FROM doctor_schedules ds
		JOIN time_slots ts ON ts.slot_id = ds.slot_id
		WHERE ds.doctor_id = $1
		  AND ds.day_of_week = $2
		  AND ds.is_active
		ORDER BY ts.start_time
	`, doctorID, dayOfWeek)
	if err != nil {
		return nil, fmt.Errorf("active schedule slots: %w", err)
	}
	return collect(rows, scanScheduleSlot)
}

func (r *PgRepository) HasActiveSchedules(ctx context.Context, doctorID int64) (bool, error) {
	ok, err := r.exists(ctx, `
		SELECT EXISTS (SELECT 1 FROM doctor_schedules WHERE doctor_id = $1 AND is_active)
	`, doctorID)
	if err != nil {
		return false, fmt.Errorf("has active schedules: %w", err)
	}
	return ok, nil
}

// Booking

const appointmentColumns = `appointment_id, patient_id, doctor_id, appointment_date, slot_id, status_id, created_at`

const appointmentViewSelect = `
	SELECT a.appointment_id, a.patient_id, p.first_name || ' ' || p.last_name, COALESCE(p.phone_no, ''),
	       a.doctor_id, d.first_name || ' ' || d.last_name, COALESCE(s.name, ''),
	       a.appointment_date, a.slot_id,
	       to_char(ts.start_time, 'HH24:MI:SS'), to_char(ts.end_time, 'HH24:MI:SS'),
	       a.status_id, COALESCE(st.status_name, ''), d.consultation_fee::float8, a.created_at
	FROM appointments a
	JOIN patients p ON p.patient_id = a.patient_id
	JOIN doctors d ON d.doctor_id = a.doctor_id
	LEFT JOIN specializations s ON s.specialization_id = d.specialization_id
	JOIN time_slots ts ON ts.slot_id = a.slot_id
	LEFT JOIN appointment_statuses st ON st.status_id = a.status_id
`

func (r *PgRepository) BeginBooking(ctx context.Context) (BookingTx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	return &pgBookingTx{tx: tx, queries: queries{db: tx}}, nil
}

func (r *PgRepository) GetAppointmentView(ctx context.Context, id int64) (*AppointmentView, error) {
	return scanAppointmentView(r.pool.QueryRow(ctx, appointmentViewSelect+` WHERE a.appointment_id = $1`, id))
}

type pgBookingTx struct {
	tx pgx.Tx
	queries
}

func (t *pgBookingTx) PatientExists(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE patient_id = $1)`, id)
}

func (t *pgBookingTx) DoctorExists(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE doctor_id = $1)`, id)
}

func (t *pgBookingTx) HasPatientBooking(ctx context.Context, patientID, doctorID int64, date Date) (bool, error) {
	return t.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1
			  AND doctor_id = $2
			  AND appointment_date = $3
			  AND status_id IS DISTINCT FROM 3
		)
	`, patientID, doctorID, date.Time())
}

func (t *pgBookingTx) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, appointment_date, slot_id, status_id, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING `+appointmentColumns, a.PatientID, a.DoctorID, a.Date.Time(), a.SlotID, a.StatusID)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (t *pgBookingTx) Commit(ctx context.Context) error {
	return mapWriteError(t.tx.Commit(ctx))
}

func (t *pgBookingTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// Lifecycle

const consultationColumns = `consultation_id, appointment_id, doctor_id, patient_id,
	blood_pressure, temperature::float8, oxygen_saturation, diagnosis, consultation_date`

func (r *PgRepository) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE appointment_id = $1`, id))
}

func (r *PgRepository) InsertConsultation(ctx context.Context, in ConsultationInput) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultations (appointment_id, doctor_id, patient_id, blood_pressure, temperature, oxygen_saturation, diagnosis)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+consultationColumns,
		in.AppointmentID, in.DoctorID, in.PatientID, in.BloodPressure, in.Temperature, in.OxygenSaturation, in.Diagnosis)

	c, err := scanConsultation(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return c, nil
}

func (r *PgRepository) GetConsultation(ctx context.Context, id int64) (*Consultation, error) {
	return scanConsultation(r.pool.QueryRow(ctx, `SELECT `+consultationColumns+` FROM consultations WHERE consultation_id = $1`, id))
}

func (r *PgRepository) ConsultationByAppointment(ctx context.Context, appointmentID int64) (*Consultation, error) {
	return scanConsultation(r.pool.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE appointment_id = $1
		ORDER BY consultation_date DESC, consultation_id DESC
		LIMIT 1
	`, appointmentID))
}

func (r *PgRepository) SetInitialStatus(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status_id = 1
		WHERE appointment_id = $1
		  AND status_id IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("set initial status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status_id = 2
		WHERE appointment_id = $1
		  AND (status_id = 1 OR status_id IS NULL)
	`, id)
	if err != nil {
		return false, fmt.Errorf("complete appointment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) StatusName(ctx context.Context, statusID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT status_name FROM appointment_statuses WHERE status_id = $1`, statusID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &NotFoundError{Resource: "appointment status"}
		}
		return "", fmt.Errorf("status name: %w", err)
	}
	return name, nil
}

func (r *PgRepository) StatusNames(ctx context.Context) (map[int64]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT status_id, status_name FROM appointment_statuses`)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	names := make(map[int64]string)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (r *PgRepository) ListDoctorAppointments(ctx context.Context, doctorID int64, from, to *Date) ([]AppointmentView, error) {
	rows, err := r.pool.Query(ctx, appointmentViewSelect+`
		WHERE a.doctor_id = $1
		  AND a.status_id = 1
		  AND ($2::date IS NULL OR a.appointment_date >= $2::date)
		  AND ($3::date IS NULL OR a.appointment_date <= $3::date)
		ORDER BY a.appointment_date, ts.start_time
	`, doctorID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return collect(rows, scanAppointmentView)
}

func (r *PgRepository) ListPatientAppointments(ctx context.Context, patientID int64, from Date) ([]AppointmentView, error) {
	rows, err := r.pool.Query(ctx, appointmentViewSelect+`
		WHERE a.patient_id = $1
		  AND a.appointment_date >= $2
		  AND a.status_id IS DISTINCT FROM 3
		ORDER BY a.appointment_date, ts.start_time
	`, patientID, from.Time())
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return collect(rows, scanAppointmentView)
}
