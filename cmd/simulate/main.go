package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/config"
	"github.com/hackgods/medcare-scheduling/internal/db"
	"github.com/hackgods/medcare-scheduling/internal/logging"
	"github.com/hackgods/medcare-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CheckRatio   float64
	ReadRatio    float64
	PatientLimit int
	TargetLimit  int
	HorizonDays  int
	PostgresDSN  string
}

// target is one bookable (doctor, slot, date) combination.
type target struct {
	DoctorID int64
	SlotID   int64
	Date     scheduling.Date
}

type DataPool struct {
	Patients []int64
	Targets  []target
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95)
}

type Metrics struct {
	Booking      OperationMetrics
	CheckSlot    OperationMetrics
	Availability OperationMetrics
	Week         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
	codes   sync.Map // conflict code -> *int64
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(baseCfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("check", cfg.CheckRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data loaded", zap.Int("patients", len(dataPool.Patients)), zap.Int("targets", len(dataPool.Targets)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	doubles, err := countDoubleBookings(ctx, pgPool)
	if err != nil {
		logger.Fatal("double booking check", zap.Error(err))
	}
	if doubles > 0 {
		logger.Fatal("double bookings detected", zap.Int64("slots", doubles))
	}
	logger.Info("no double bookings")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CheckRatio:   getFloat("SIM_CHECK_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		TargetLimit:  getInt("SIM_TARGET_LIMIT", 200),
		HorizonDays:  base.HorizonDays,
		PostgresDSN:  base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.CheckRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CheckRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool picks patients and expands active schedule rows into concrete
// dates inside the booking horizon. Targets are kept few so workers collide.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `SELECT patient_id FROM patients ORDER BY random() LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	patients, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	type scheduleRow struct {
		DoctorID  int64
		DayOfWeek int
		SlotID    int64
	}
	rows, err = pool.Query(ctx, `
		SELECT doctor_id, day_of_week, slot_id
		FROM doctor_schedules
		WHERE is_active
		ORDER BY random()
		LIMIT $1
	`, cfg.TargetLimit)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	schedules, err := pgx.CollectRows(rows, pgx.RowToStructByPos[scheduleRow])
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	today := scheduling.DateOf(time.Now())
	dp := &DataPool{Patients: patients}
	for offset := 0; offset <= cfg.HorizonDays; offset++ {
		date := today.AddDays(offset)
		for _, s := range schedules {
			if s.DayOfWeek == date.Weekday() {
				dp.Targets = append(dp.Targets, target{DoctorID: s.DoctorID, SlotID: s.SlotID, Date: date})
			}
		}
	}

	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dp.Targets) == 0 {
		return nil, fmt.Errorf("no active schedules inside the horizon")
	}
	return dp, nil
}

func countDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var n int64
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT 1 FROM appointments
			WHERE status_id IS DISTINCT FROM 3
			GROUP BY doctor_id, slot_id, appointment_date
			HAVING count(*) > 1
		) d
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, t)
		case r < s.config.BookingRatio+s.config.CheckRatio:
			s.doCheckSlot(ctx, t)
		case rng.Intn(2) == 0:
			s.doAvailability(ctx, t)
		default:
			s.doWeek(ctx, t)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, t target) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	body, _ := json.Marshal(scheduling.BookingRequest{
		PatientID:       patientID,
		DoctorID:        t.DoctorID,
		SlotID:          t.SlotID,
		AppointmentDate: t.Date.String(),
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/slots/book", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
		case http.StatusConflict:
			conflict = true
			var e struct {
				Error string `json:"error"`
			}
			if json.NewDecoder(resp.Body).Decode(&e) == nil {
				s.countCode(e.Error)
			}
		}
	}
	if ctx.Err() != nil {
		return
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCheckSlot(ctx context.Context, t target) {
	q := url.Values{}
	q.Set("doctor_id", strconv.FormatInt(t.DoctorID, 10))
	q.Set("slot_id", strconv.FormatInt(t.SlotID, 10))
	q.Set("appointment_date", t.Date.String())
	s.get(ctx, &s.metrics.CheckSlot, "/slots/check-availability?"+q.Encode())
}

func (s *Simulator) doAvailability(ctx context.Context, t target) {
	s.get(ctx, &s.metrics.Availability, fmt.Sprintf("/doctors/%d/available-schedule?date=%s", t.DoctorID, t.Date))
}

func (s *Simulator) doWeek(ctx context.Context, t target) {
	s.get(ctx, &s.metrics.Week, fmt.Sprintf("/doctors/%d/latest-schedule", t.DoctorID))
}

func (s *Simulator) get(ctx context.Context, om *OperationMetrics, path string) {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	if ctx.Err() != nil {
		return
	}

	om.Record(latency, success, false)
}

func (s *Simulator) countCode(code string) {
	v, _ := s.codes.LoadOrStore(code, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Targets: %d\n", len(s.pool.Targets))
	fmt.Println()

	printOperationReport("Book slot", &s.metrics.Booking)
	s.codes.Range(func(k, v any) bool {
		fmt.Printf("    %s: %d\n", k, atomic.LoadInt64(v.(*int64)))
		return true
	})
	printOperationReport("Check slot", &s.metrics.CheckSlot)
	printOperationReport("Day availability", &s.metrics.Availability)
	printOperationReport("Week availability", &s.metrics.Week)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
