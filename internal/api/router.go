package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/metrics"
)

type RouterConfig struct {
	Catalog      CatalogService
	Schedules    ScheduleService
	Availability AvailabilityService
	Booking      BookingService
	Lifecycle    LifecycleService

	Health   *HealthHandler
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))

	r.Get("/time-slots", listTimeSlotsHandler(cfg.Catalog, logger))

	r.Route("/doctors/{id}", func(r chi.Router) {
		r.Get("/available-schedule", availableScheduleHandler(cfg.Availability, logger))
		r.Get("/latest-schedule", latestScheduleHandler(cfg.Availability, logger))
		r.Post("/schedules", addScheduleHandler(cfg.Schedules, logger))
		r.Get("/appointments", doctorAppointmentsHandler(cfg.Lifecycle, logger))
	})

	r.Get("/schedules", listSchedulesHandler(cfg.Schedules, logger))
	r.Put("/schedules/{id}", updateScheduleHandler(cfg.Schedules, logger))
	r.Delete("/schedules/{id}", deleteScheduleHandler(cfg.Schedules, logger))

	r.Post("/slots/book", bookSlotHandler(cfg.Booking, logger))
	r.Get("/slots/check-availability", checkAvailabilityHandler(cfg.Availability, logger))

	r.Get("/appointments", patientAppointmentsHandler(cfg.Lifecycle, logger))
	r.Put("/appointments/{id}/status", updateAppointmentStatusHandler(cfg.Lifecycle, logger))

	r.Post("/consultations", createConsultationHandler(cfg.Lifecycle, logger))
	r.Get("/consultations/{id}", getConsultationHandler(cfg.Lifecycle, logger))
	r.Get("/consultations/appointment/{appointmentId}", consultationForAppointmentHandler(cfg.Lifecycle, logger))

	return r
}
