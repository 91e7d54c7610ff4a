package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/scheduling"
)

type ScheduleService interface {
	AddSchedule(ctx context.Context, in scheduling.NewSchedule) (*scheduling.DoctorSchedule, error)
	ListSchedules(ctx context.Context, f scheduling.ScheduleFilter) ([]scheduling.ScheduleView, error)
	UpdateSchedule(ctx context.Context, id int64, upd scheduling.ScheduleUpdate) (*scheduling.ScheduleView, error)
	DeleteSchedule(ctx context.Context, id int64) error
}

func addScheduleHandler(svc ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := idParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		var in scheduling.NewSchedule
		if err := decodeJSON(r, &in, false); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		in.DoctorID = doctorID

		created, err := svc.AddSchedule(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, ScheduleResponse{Message: "Schedule added successfully", Schedule: created})
	}
}

func listSchedulesHandler(svc ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := queryInt64(r, "doctor_id", false)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		day, err := queryInt64(r, "day_of_week", false)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		f := scheduling.ScheduleFilter{DoctorID: doctorID}
		if day != nil {
			d := int(*day)
			f.DayOfWeek = &d
		}

		views, err := svc.ListSchedules(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func updateScheduleHandler(svc ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		var upd scheduling.ScheduleUpdate
		if err := decodeJSON(r, &upd, false); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		view, err := svc.UpdateSchedule(r.Context(), id, upd)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ScheduleResponse{Message: "Schedule updated successfully", Schedule: view})
	}
}

func deleteScheduleHandler(svc ScheduleService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		if err := svc.DeleteSchedule(r.Context(), id); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Schedule deleted successfully"})
	}
}
