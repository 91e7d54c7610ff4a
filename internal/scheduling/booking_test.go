package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/medcare-scheduling/internal/metrics"
	redisclient "github.com/hackgods/medcare-scheduling/internal/redis"
)

func bookReq(patient, doctor, slot int64, date Date) BookingRequest {
	return BookingRequest{PatientID: patient, DoctorID: doctor, SlotID: slot, AppointmentDate: date.String()}
}

func requireConflict(t *testing.T, err error, code string) {
	t.Helper()
	var cerr *ConflictError
	require.True(t, errors.As(err, &cerr), "want ConflictError, got %v", err)
	assert.Equal(t, code, cerr.Code)
}

func requireValidation(t *testing.T, err error, code string) {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
	assert.Equal(t, code, verr.Code)
}

func TestBookSlotScenario(t *testing.T) {
	store := newMemStore()
	engine := NewBookingEngine(store, nil, testOptions())
	ctx := context.Background()

	store.addSchedule(10, 1, 1, true)
	store.addSchedule(10, 1, 2, true)
	nextMonday := testToday().AddDays(7)

	appt, err := engine.BookSlot(ctx, bookReq(7, 10, 1, nextMonday))
	require.NoError(t, err)
	assert.Equal(t, "Scheduled", appt.StatusName)
	assert.Equal(t, nextMonday, appt.Date)
	assert.Equal(t, "09:00:00", appt.StartTime)
	assert.Equal(t, "09:30:00", appt.EndTime)
	assert.Equal(t, "Gregory House", appt.DoctorName)
	assert.Equal(t, "Ann Perkins", appt.PatientName)

	_, err = engine.BookSlot(ctx, bookReq(8, 10, 1, nextMonday))
	requireConflict(t, err, CodeSlotAlreadyBooked)

	_, err = engine.BookSlot(ctx, bookReq(7, 10, 2, nextMonday))
	requireConflict(t, err, CodeDuplicateBooking)

	assert.Equal(t, []string{EventAppointmentCreated}, store.eventTypes())
	commits, rollbacks := store.counts()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 2, rollbacks)
}

func TestBookSlotCheckOrder(t *testing.T) {
	store := newMemStore()
	engine := NewBookingEngine(store, nil, testOptions())
	ctx := context.Background()
	today := testToday()

	store.addSchedule(10, 1, 1, true)
	store.addSchedule(10, 1, 2, false)
	store.addAppointment(9, 10, 1, today, statusPtr(StatusScheduled))

	_, err := engine.BookSlot(ctx, BookingRequest{DoctorID: 10, SlotID: 1, AppointmentDate: today.String()})
	requireValidation(t, err, CodeInvalidInput)

	_, err = engine.BookSlot(ctx, BookingRequest{PatientID: 7, DoctorID: 10, SlotID: 1, AppointmentDate: "next monday"})
	requireValidation(t, err, CodeInvalidDate)

	// Horizon is checked before existence.
	_, err = engine.BookSlot(ctx, bookReq(404, 404, 1, today.AddDays(-1)))
	requireValidation(t, err, CodeDateInPast)

	_, err = engine.BookSlot(ctx, bookReq(7, 10, 1, today.AddDays(8)))
	requireValidation(t, err, CodeDateTooFarAhead)

	_, err = engine.BookSlot(ctx, bookReq(404, 404, 1, today))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "patient", nf.Resource)

	_, err = engine.BookSlot(ctx, bookReq(7, 404, 1, today))
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "doctor", nf.Resource)

	// Duplicate patient booking wins over the slot checks.
	_, err = engine.BookSlot(ctx, bookReq(9, 10, 5, today))
	requireConflict(t, err, CodeDuplicateBooking)

	_, err = engine.BookSlot(ctx, bookReq(7, 10, 5, today))
	requireValidation(t, err, CodeSlotNotInSchedule)

	_, err = engine.BookSlot(ctx, bookReq(7, 10, 2, today))
	requireValidation(t, err, CodeSlotNotInSchedule)

	_, err = engine.BookSlot(ctx, bookReq(7, 10, 1, today))
	requireConflict(t, err, CodeSlotAlreadyBooked)

	commits, rollbacks := store.counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 6, rollbacks)
}

func TestBookSlotAfterCancellation(t *testing.T) {
	store := newMemStore()
	engine := NewBookingEngine(store, nil, testOptions())
	today := testToday()

	store.addSchedule(10, 1, 1, true)
	store.addAppointment(7, 10, 1, today, statusPtr(StatusCancelled))

	appt, err := engine.BookSlot(context.Background(), bookReq(7, 10, 1, today))
	require.NoError(t, err)
	assert.Equal(t, int64(7), appt.PatientID)
}

func TestBookSlotAllowsDifferentDoctorsSameDay(t *testing.T) {
	store := newMemStore()
	engine := NewBookingEngine(store, nil, testOptions())
	today := testToday()

	store.addSchedule(10, 1, 1, true)
	store.addSchedule(11, 1, 1, true)

	_, err := engine.BookSlot(context.Background(), bookReq(7, 10, 1, today))
	require.NoError(t, err)
	_, err = engine.BookSlot(context.Background(), bookReq(7, 11, 1, today))
	require.NoError(t, err)
}

func TestConcurrentBookingsSingleWinner(t *testing.T) {
	const n = 20

	store := newMemStore()
	store.addSchedule(10, 1, 1, true)
	for i := 0; i < n; i++ {
		store.patients[int64(1000+i)] = fmt.Sprintf("Patient %d", i)
	}

	reg := prometheus.NewRegistry()
	opts := testOptions()
	opts.Metrics = metrics.NewCollector(reg)
	engine := NewBookingEngine(store, nil, opts)
	date := testToday().AddDays(7)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(patient int64) {
			defer wg.Done()
			_, err := engine.BookSlot(context.Background(), bookReq(patient, 10, 1, date))

			mu.Lock()
			defer mu.Unlock()
			var cerr *ConflictError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &cerr):
				conflicts++
			default:
				others = append(others, err)
			}
		}(int64(1000 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	assert.Empty(t, others)

	booked, err := store.BookedSlotIDs(context.Background(), 10, date)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestConcurrentBookingsWithRedisLock(t *testing.T) {
	const n = 10

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	store.addSchedule(10, 1, 1, true)
	for i := 0; i < n; i++ {
		store.patients[int64(2000+i)] = fmt.Sprintf("Patient %d", i)
	}

	reg := prometheus.NewRegistry()
	opts := testOptions()
	opts.Metrics = metrics.NewCollector(reg)
	locker := redisclient.NewRedisSlotLocker(client, 5*time.Second, 2*time.Second)
	engine := NewBookingEngine(store, locker, opts)
	date := testToday().AddDays(7)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(patient int64) {
			defer wg.Done()
			_, err := engine.BookSlot(context.Background(), bookReq(patient, 10, 1, date))
			mu.Lock()
			defer mu.Unlock()
			var cerr *ConflictError
			if err == nil {
				successes++
			} else if errors.As(err, &cerr) {
				conflicts++
			}
		}(int64(2000 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	assert.False(t, mr.Exists(SlotLockKey(10, 1, date)), "lock released")
}

func TestBookSlotLockBusy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	store.addSchedule(10, 1, 1, true)
	date := testToday()
	require.NoError(t, mr.Set(SlotLockKey(10, 1, date), "someone-else"))

	reg := prometheus.NewRegistry()
	opts := testOptions()
	opts.Metrics = metrics.NewCollector(reg)
	engine := NewBookingEngine(store, redisclient.NewRedisSlotLocker(client, time.Second, 50*time.Millisecond), opts)

	_, err := engine.BookSlot(context.Background(), bookReq(7, 10, 1, date))
	requireConflict(t, err, CodeSlotBeingBooked)

	expected := `
# HELP medcare_scheduling_slot_lock_contention_total Bookings rejected because the slot lock stayed busy.
# TYPE medcare_scheduling_slot_lock_contention_total counter
medcare_scheduling_slot_lock_contention_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "medcare_scheduling_slot_lock_contention_total"))
}

func TestBookSlotFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	store := newMemStore()
	store.addSchedule(10, 1, 1, true)
	engine := NewBookingEngine(store, redisclient.NewRedisSlotLocker(client, time.Second, 50*time.Millisecond), testOptions())

	appt, err := engine.BookSlot(context.Background(), bookReq(7, 10, 1, testToday()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), appt.SlotID)
}

func TestSlotLockKey(t *testing.T) {
	assert.Equal(t, "lock:slot:10:3:2025-06-16", SlotLockKey(10, 3, NewDate(2025, time.June, 16)))
}
