package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/scheduling"
)

type CatalogService interface {
	ListSlots(ctx context.Context) ([]scheduling.TimeSlot, error)
}

type AvailabilityService interface {
	ResolveAvailability(ctx context.Context, doctorID int64, date scheduling.Date) (*scheduling.DayAvailability, error)
	ResolveWeekAvailability(ctx context.Context, doctorID int64) (*scheduling.WeekAvailability, error)
	CheckSlotAvailability(ctx context.Context, doctorID, slotID int64, date scheduling.Date) (*scheduling.SlotCheck, error)
}

type BookingService interface {
	BookSlot(ctx context.Context, req scheduling.BookingRequest) (*scheduling.AppointmentView, error)
}

// Request parsing helpers

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &scheduling.ValidationError{Code: "invalid_" + name, Message: name + " must be a positive integer"}
	}
	return id, nil
}

func queryInt64(r *http.Request, name string, required bool) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return nil, &scheduling.ValidationError{Code: "missing_" + name, Message: name + " is required"}
		}
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &scheduling.ValidationError{Code: "invalid_" + name, Message: name + " must be an integer"}
	}
	return &v, nil
}

func queryDate(r *http.Request, name string, required bool) (*scheduling.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return nil, &scheduling.ValidationError{Code: "missing_" + name, Message: name + " is required (YYYY-MM-DD)"}
		}
		return nil, nil
	}
	d, err := scheduling.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// decodeJSON decodes the request body into v. An empty body is allowed when
// allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return nil
	}
	return &scheduling.ValidationError{Code: "invalid_request_body", Message: "could not parse JSON"}
}

// Time slots

func listTimeSlotsHandler(svc CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListSlots(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

// Availability

func availableScheduleHandler(svc AvailabilityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := idParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		date, err := queryDate(r, "date", true)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		day, err := svc.ResolveAvailability(r.Context(), doctorID, *date)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, day)
	}
}

func latestScheduleHandler(svc AvailabilityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := idParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		week, err := svc.ResolveWeekAvailability(r.Context(), doctorID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, week)
	}
}

func checkAvailabilityHandler(svc AvailabilityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := queryInt64(r, "doctor_id", true)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		slotID, err := queryInt64(r, "slot_id", true)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		date, err := queryDate(r, "appointment_date", true)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		check, err := svc.CheckSlotAvailability(r.Context(), *doctorID, *slotID, *date)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, check)
	}
}

// Booking

func bookSlotHandler(svc BookingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduling.BookingRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.BookSlot(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookSlotResponse{
			Message:     "Appointment booked successfully",
			Appointment: appt,
		})
	}
}
