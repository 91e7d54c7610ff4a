package scheduling

import (
	"context"
)

// Repository methods report missing rows as *NotFoundError and constraint or
// serialization conflicts as *ConflictError. Anything else is an
// infrastructure error.

type CatalogRepository interface {
	ListTimeSlots(ctx context.Context) ([]TimeSlot, error)
}

type DoctorReader interface {
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)
}

type ScheduleRepository interface {
	DoctorReader
	CreateSchedule(ctx context.Context, s DoctorSchedule) (*DoctorSchedule, error)
	GetScheduleView(ctx context.Context, id int64) (*ScheduleView, error)
	ListScheduleViews(ctx context.Context, f ScheduleFilter) ([]ScheduleView, error)
	UpdateSchedule(ctx context.Context, id int64, upd ScheduleUpdate) (*DoctorSchedule, error)
	DeleteSchedule(ctx context.Context, id int64) error
}

// SlotReader is the read surface shared by the availability resolver and the
// booking transaction so both judge a slot with the same queries.
type SlotReader interface {
	// ScheduleForSlot returns the schedule row for (doctor, weekday, slot)
	// whether active or not, or nil if there is none.
	ScheduleForSlot(ctx context.Context, doctorID int64, dayOfWeek int, slotID int64) (*ScheduleSlot, error)
	// BookedSlotIDs returns the slots holding a non-cancelled appointment.
	BookedSlotIDs(ctx context.Context, doctorID int64, date Date) (map[int64]struct{}, error)
}

type AvailabilityRepository interface {
	DoctorReader
	SlotReader
	ActiveScheduleSlots(ctx context.Context, doctorID int64, dayOfWeek int) ([]ScheduleSlot, error)
	HasActiveSchedules(ctx context.Context, doctorID int64) (bool, error)
}

type BookingRepository interface {
	// BeginBooking opens a SERIALIZABLE transaction.
	BeginBooking(ctx context.Context) (BookingTx, error)
	GetAppointmentView(ctx context.Context, id int64) (*AppointmentView, error)
}

type BookingTx interface {
	SlotReader
	PatientExists(ctx context.Context, id int64) (bool, error)
	DoctorExists(ctx context.Context, id int64) (bool, error)
	HasPatientBooking(ctx context.Context, patientID, doctorID int64, date Date) (bool, error)
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	InsertEvent(ctx context.Context, ev EventLog) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type LifecycleRepository interface {
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)
	InsertConsultation(ctx context.Context, in ConsultationInput) (*Consultation, error)
	GetConsultation(ctx context.Context, id int64) (*Consultation, error)
	ConsultationByAppointment(ctx context.Context, appointmentID int64) (*Consultation, error)

	// SetInitialStatus sets Scheduled on an appointment whose status is null.
	SetInitialStatus(ctx context.Context, id int64) (bool, error)
	// CompleteAppointment moves a Scheduled (or null) appointment to
	// Completed and reports whether a row changed.
	CompleteAppointment(ctx context.Context, id int64) (bool, error)
	StatusName(ctx context.Context, statusID int64) (string, error)
	StatusNames(ctx context.Context) (map[int64]string, error)

	ListDoctorAppointments(ctx context.Context, doctorID int64, from, to *Date) ([]AppointmentView, error)
	ListPatientAppointments(ctx context.Context, patientID int64, from Date) ([]AppointmentView, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
