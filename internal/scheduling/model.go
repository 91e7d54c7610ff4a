package scheduling

import (
	"time"
)

// Appointment status ids, seeded by migration 0002.
const (
	StatusScheduled int64 = 1
	StatusCompleted int64 = 2
	StatusCancelled int64 = 3
)

// CanTransition reports whether an appointment may move between statuses.
// Completed and Cancelled are terminal.
func CanTransition(from, to int64) bool {
	return from == StatusScheduled && (to == StatusCompleted || to == StatusCancelled)
}

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

type TimeSlot struct {
	ID        int64  `json:"slot_id"`
	Number    int    `json:"slot_number"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type Doctor struct {
	ID              int64   `json:"doctor_id"`
	Name            string  `json:"name"`
	Specialization  string  `json:"specialization"`
	ConsultationFee float64 `json:"consultation_fee"`
}

type DoctorSchedule struct {
	ID        int64     `json:"schedule_id"`
	DoctorID  int64     `json:"doctor_id"`
	DayOfWeek int       `json:"day_of_week"`
	SlotID    int64     `json:"slot_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleView is a schedule row joined with its slot and doctor.
type ScheduleView struct {
	DoctorSchedule
	DoctorName string `json:"doctor_name"`
	DayName    string `json:"day_name"`
	SlotNumber int    `json:"slot_number"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type ScheduleFilter struct {
	DoctorID  *int64
	DayOfWeek *int
}

type NewSchedule struct {
	DoctorID  int64 `json:"-"`
	DayOfWeek *int  `json:"day_of_week"`
	SlotID    int64 `json:"slot_id"`
	IsActive  *bool `json:"is_active"`
}

// ScheduleUpdate carries the fields to change; nil fields are left as-is.
type ScheduleUpdate struct {
	DayOfWeek *int   `json:"day_of_week"`
	SlotID    *int64 `json:"slot_id"`
	IsActive  *bool  `json:"is_active"`
}

func (u ScheduleUpdate) empty() bool {
	return u.DayOfWeek == nil && u.SlotID == nil && u.IsActive == nil
}

// ScheduleSlot is one schedule row for a doctor and weekday with its slot
// times.
type ScheduleSlot struct {
	ScheduleID int64  `json:"schedule_id"`
	SlotID     int64  `json:"slot_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	IsActive   bool   `json:"-"`
}

const (
	SlotStatusAvailable = "Available"
	SlotStatusBooked    = "Booked"
)

type SlotAvailability struct {
	ScheduleID  int64  `json:"schedule_id"`
	SlotID      int64  `json:"slot_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
	Status      string `json:"status"`
}

type DayAvailability struct {
	Doctor         Doctor             `json:"doctor"`
	Date           Date               `json:"date"`
	DayOfWeek      int                `json:"day_of_week"`
	DayName        string             `json:"day_name"`
	Slots          []SlotAvailability `json:"slots"`
	AvailableCount int                `json:"available_count"`
	TotalSlots     int                `json:"total_slots"`
}

type WeekDay struct {
	Date           Date               `json:"date"`
	DayOfWeek      int                `json:"day_of_week"`
	DayName        string             `json:"day_name"`
	Slots          []SlotAvailability `json:"slots"`
	AvailableSlots int                `json:"available_slots"`
	TotalSlots     int                `json:"total_slots"`
}

type SchedulePeriod struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

type WeekAvailability struct {
	Doctor         Doctor         `json:"doctor"`
	SchedulePeriod SchedulePeriod `json:"schedule_period"`
	Availability   []WeekDay      `json:"availability"`
}

type SlotReason string

const (
	ReasonNotInSchedule    SlotReason = "not_in_schedule"
	ReasonScheduleInactive SlotReason = "schedule_inactive"
	ReasonAlreadyBooked    SlotReason = "already_booked"
	ReasonAvailable        SlotReason = "available"
)

type SlotCheck struct {
	IsAvailable bool          `json:"is_available"`
	Reason      SlotReason    `json:"reason"`
	SlotDetails *ScheduleSlot `json:"slot_details,omitempty"`
}

type BookingRequest struct {
	PatientID       int64  `json:"patient_id"`
	DoctorID        int64  `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	SlotID          int64  `json:"slot_id"`
}

type Appointment struct {
	ID        int64
	PatientID int64
	DoctorID  int64
	Date      Date
	SlotID    int64
	StatusID  *int64
	CreatedAt time.Time
}

// AppointmentView is an appointment joined with its patient, doctor, slot and
// status.
type AppointmentView struct {
	ID              int64     `json:"appointment_id"`
	PatientID       int64     `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone"`
	DoctorID        int64     `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	Specialization  string    `json:"specialization"`
	Date            Date      `json:"appointment_date"`
	SlotID          int64     `json:"slot_id"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	StatusID        *int64    `json:"status_id"`
	StatusName      string    `json:"status_name"`
	ConsultationFee float64   `json:"consultation_fee"`
	CreatedAt       time.Time `json:"created_at"`
}

type ConsultationInput struct {
	AppointmentID    int64    `json:"appointment_id"`
	DoctorID         int64    `json:"doctor_id"`
	PatientID        int64    `json:"patient_id"`
	BloodPressure    *string  `json:"blood_pressure"`
	Temperature      *float64 `json:"temperature"`
	OxygenSaturation *int     `json:"oxygen_saturation"`
	Diagnosis        *string  `json:"diagnosis"`
}

type Consultation struct {
	ID               int64     `json:"consultation_id"`
	AppointmentID    int64     `json:"appointment_id"`
	DoctorID         int64     `json:"doctor_id"`
	PatientID        int64     `json:"patient_id"`
	BloodPressure    *string   `json:"blood_pressure"`
	Temperature      *float64  `json:"temperature"`
	OxygenSaturation *int      `json:"oxygen_saturation"`
	Diagnosis        *string   `json:"diagnosis"`
	ConsultationDate time.Time `json:"consultation_date"`
}

type ConsultationLookup struct {
	Exists       bool          `json:"exists"`
	Consultation *Consultation `json:"consultation,omitempty"`
}

type StatusSync struct {
	AppointmentID      int64  `json:"appointment_id"`
	PreviousStatus     *int64 `json:"previous_status"`
	NewStatus          int64  `json:"new_status"`
	StatusName         string `json:"status_name"`
	ConsultationExists bool   `json:"consultation_exists"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}
