package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/medcare-scheduling/internal/config"
	"github.com/hackgods/medcare-scheduling/internal/db"
	"github.com/hackgods/medcare-scheduling/internal/logging"
)

const (
	firstSlotStart = 9 * time.Hour
	slotLength     = 30 * time.Minute
)

var specializations = []string{
	"Cardiology",
	"Dermatology",
	"Endocrinology",
	"ENT",
	"General Practice",
	"Neurology",
	"Ophthalmology",
	"Orthopedics",
	"Pediatrics",
	"Psychiatry",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	s := &seeder{pool: pool, faker: faker, logger: logger}

	doctors := envInt("SEED_DOCTORS", 25)
	patients := envInt("SEED_PATIENTS", 2000)
	slots := envInt("SEED_SLOTS", 16)

	bg := context.Background()
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"specializations", s.seedSpecializations},
		{"time slots", func(ctx context.Context) error { return s.seedTimeSlots(ctx, slots) }},
		{"doctors", func(ctx context.Context) error { return s.seedDoctors(ctx, doctors) }},
		{"patients", func(ctx context.Context) error { return s.seedPatients(ctx, patients) }},
		{"schedules", s.seedSchedules},
	}
	for _, step := range steps {
		if err := step.fn(bg); err != nil {
			logger.Fatal("seed failed", zap.String("step", step.name), zap.Error(err))
		}
	}

	logger.Info("seed complete")
}

type seeder struct {
	pool   *pgxpool.Pool
	faker  *gofakeit.Faker
	logger *zap.Logger
}

func (s *seeder) seedSpecializations(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, name := range specializations {
		batch.Queue(`INSERT INTO specializations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	s.logger.Info("specializations seeded", zap.Int("count", len(specializations)))
	return nil
}

// seedTimeSlots creates consecutive slots starting at 09:00.
func (s *seeder) seedTimeSlots(ctx context.Context, count int) error {
	batch := &pgx.Batch{}
	for i := 0; i < count; i++ {
		start := firstSlotStart + time.Duration(i)*slotLength
		batch.Queue(`
			INSERT INTO time_slots (slot_number, start_time, end_time)
			VALUES ($1, $2::time, $3::time)
			ON CONFLICT (slot_number) DO NOTHING
		`, i+1, clock(start), clock(start+slotLength))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	s.logger.Info("time slots seeded", zap.Int("count", count))
	return nil
}

func (s *seeder) seedDoctors(ctx context.Context, count int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := 0; i < count; i++ {
		spec := specializations[s.faker.Number(0, len(specializations)-1)]
		fee := float64(s.faker.Number(40, 300))
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (first_name, last_name, specialization_id, consultation_fee, room_no)
			SELECT $1, $2, specialization_id, $4, $5
			FROM specializations WHERE name = $3
		`, s.faker.FirstName(), s.faker.LastName(), spec, fee, fmt.Sprintf("R-%03d", s.faker.Number(100, 499)))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("doctors seeded", zap.Int("count", count))
	return nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		rows := make([][]any, 0, end-offset)
		for i := offset; i < end; i++ {
			rows = append(rows, []any{s.faker.FirstName(), s.faker.LastName(), s.faker.Phone()})
		}

		if _, err := s.pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"first_name", "last_name", "phone_no"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return err
		}
		s.logger.Debug("patients batch", zap.Int("seeded", end), zap.Int("total", count))
	}

	s.logger.Info("patients seeded", zap.Int("count", count))
	return nil
}

// seedSchedules gives every doctor without a schedule a random set of
// working days, each covering a contiguous run of slots.
func (s *seeder) seedSchedules(ctx context.Context) error {
	doctorIDs, err := ids(ctx, s.pool, `
		SELECT d.doctor_id FROM doctors d
		WHERE NOT EXISTS (SELECT 1 FROM doctor_schedules ds WHERE ds.doctor_id = d.doctor_id)
	`)
	if err != nil {
		return err
	}
	slotIDs, err := ids(ctx, s.pool, `SELECT slot_id FROM time_slots ORDER BY slot_number`)
	if err != nil {
		return err
	}
	if len(slotIDs) == 0 {
		return fmt.Errorf("no time slots")
	}

	batch := &pgx.Batch{}
	for _, doctorID := range doctorIDs {
		for day := 0; day < 7; day++ {
			if !s.faker.Bool() {
				continue
			}
			from := s.faker.Number(0, len(slotIDs)-1)
			to := s.faker.Number(from, len(slotIDs)-1)
			for _, slotID := range slotIDs[from : to+1] {
				batch.Queue(`
					INSERT INTO doctor_schedules (doctor_id, day_of_week, slot_id, is_active)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT ON CONSTRAINT uq_doctor_schedules_doctor_day_slot DO NOTHING
				`, doctorID, day, slotID, s.faker.Number(1, 10) > 1)
			}
		}
	}

	queued := batch.Len()
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	s.logger.Info("schedules seeded", zap.Int("doctors", len(doctorIDs)), zap.Int("rows", queued))
	return nil
}

func ids(ctx context.Context, pool *pgxpool.Pool, sql string) ([]int64, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:00", int(d.Hours()), int(d.Minutes())%60)
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
