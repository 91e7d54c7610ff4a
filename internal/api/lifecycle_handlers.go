package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/scheduling"
)

type LifecycleService interface {
	RecordConsultation(ctx context.Context, in scheduling.ConsultationInput) (*scheduling.Consultation, error)
	GetConsultation(ctx context.Context, id int64) (*scheduling.Consultation, error)
	ConsultationForAppointment(ctx context.Context, appointmentID int64) (*scheduling.ConsultationLookup, error)
	SyncStatusFromConsultation(ctx context.Context, appointmentID int64, updatedBy *int64) (*scheduling.StatusSync, error)
	ListDoctorAppointments(ctx context.Context, doctorID int64, from, to *scheduling.Date) ([]scheduling.AppointmentView, error)
	ListPatientAppointments(ctx context.Context, patientID int64) ([]scheduling.AppointmentView, error)
}

func createConsultationHandler(svc LifecycleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in scheduling.ConsultationInput
		if err := decodeJSON(r, &in, false); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		c, err := svc.RecordConsultation(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, ConsultationResponse{Message: "Consultation created successfully", Consultation: c})
	}
}

func getConsultationHandler(svc LifecycleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		c, err := svc.GetConsultation(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func consultationForAppointmentHandler(svc LifecycleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "appointmentId")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		lookup, err := svc.ConsultationForAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, lookup)
	}
}

func updateAppointmentStatusHandler(svc LifecycleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		var req StatusUpdateRequest
		if err := decodeJSON(r, &req, true); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		sync, err := svc.SyncStatusFromConsultation(r.Context(), id, req.UpdatedByDoctorID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		msg := "Appointment status updated"
		if sync.ConsultationExists && sync.NewStatus == scheduling.StatusCompleted {
			msg = "Appointment marked as completed (consultation exists)"
		}
		writeJSON(w, http.StatusOK, StatusUpdateResponse{Message: msg, StatusSync: sync})
	}
}

func doctorAppointmentsHandler(svc LifecycleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := idParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		from, err := queryDate(r, "start_date", false)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		to, err := queryDate(r, "end_date", false)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		views, err := svc.ListDoctorAppointments(r.Context(), doctorID, from, to)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func patientAppointmentsHandler(svc LifecycleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := queryInt64(r, "patient_id", true)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		views, err := svc.ListPatientAppointments(r.Context(), *patientID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}
