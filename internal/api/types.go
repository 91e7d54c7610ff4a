package api

import (
	"github.com/hackgods/medcare-scheduling/internal/scheduling"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type BookSlotResponse struct {
	Message     string                      `json:"message"`
	Appointment *scheduling.AppointmentView `json:"appointment"`
}

type ScheduleResponse struct {
	Message  string `json:"message"`
	Schedule any    `json:"schedule"`
}

type ConsultationResponse struct {
	Message      string                   `json:"message"`
	Consultation *scheduling.Consultation `json:"consultation"`
}

type StatusUpdateRequest struct {
	UpdatedByDoctorID *int64 `json:"updated_by_doctor_id"`
}

type StatusUpdateResponse struct {
	Message string `json:"message"`
	*scheduling.StatusSync
}
