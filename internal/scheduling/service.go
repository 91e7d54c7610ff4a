package scheduling

import (
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/metrics"
	redisclient "github.com/hackgods/medcare-scheduling/internal/redis"
)

const tracerName = "github.com/hackgods/medcare-scheduling/internal/scheduling"

var tracer = otel.Tracer(tracerName)

// Options are shared by every component in this package. Zero values are
// usable: a 7 day horizon, the wall clock, no logging and no metrics.
type Options struct {
	HorizonDays    int
	SlotCatalogTTL time.Duration
	Clock          func() time.Time
	Logger         *zap.Logger
	Metrics        *metrics.Collector
}

func (o Options) withDefaults() Options {
	if o.HorizonDays <= 0 {
		o.HorizonDays = 7
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// today is the server-local calendar date.
func (o Options) today() Date {
	return DateOf(o.Clock())
}

// Service bundles the scheduling components over one PgRepository.
type Service struct {
	Catalog      *Catalog
	Schedules    *ScheduleStore
	Availability *AvailabilityResolver
	Booking      *BookingEngine
	Lifecycle    *Lifecycle
}

func NewService(repo *PgRepository, locker redisclient.Locker, opts Options) *Service {
	opts = opts.withDefaults()
	catalog := NewCatalog(repo, opts.SlotCatalogTTL)
	return &Service{
		Catalog:      catalog,
		Schedules:    NewScheduleStore(repo, catalog, opts),
		Availability: NewAvailabilityResolver(repo, opts),
		Booking:      NewBookingEngine(repo, locker, opts),
		Lifecycle:    NewLifecycle(repo, opts),
	}
}

func eventPayload(logger *zap.Logger, eventType string, payload map[string]any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		return nil
	}
	return data
}
