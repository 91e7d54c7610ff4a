package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotReason(t *testing.T) {
	booked := map[int64]struct{}{2: {}}

	assert.Equal(t, ReasonNotInSchedule, slotReason(nil, booked))
	assert.Equal(t, ReasonScheduleInactive, slotReason(&ScheduleSlot{SlotID: 2, IsActive: false}, booked))
	assert.Equal(t, ReasonAlreadyBooked, slotReason(&ScheduleSlot{SlotID: 2, IsActive: true}, booked))
	assert.Equal(t, ReasonAvailable, slotReason(&ScheduleSlot{SlotID: 3, IsActive: true}, booked))
}

func TestResolveAvailability(t *testing.T) {
	store := newMemStore()
	r := NewAvailabilityResolver(store, testOptions())
	ctx := context.Background()

	monday := testToday().AddDays(7)
	store.addSchedule(10, 1, 3, true)
	store.addSchedule(10, 1, 1, true)
	store.addSchedule(10, 1, 2, false)
	store.addSchedule(10, 2, 1, true)
	store.addAppointment(7, 10, 3, monday, statusPtr(StatusScheduled))
	store.addAppointment(8, 10, 1, monday, statusPtr(StatusCancelled))

	day, err := r.ResolveAvailability(ctx, 10, monday)
	require.NoError(t, err)

	assert.Equal(t, 1, day.DayOfWeek)
	assert.Equal(t, "Monday", day.DayName)
	assert.Equal(t, "Gregory House", day.Doctor.Name)
	require.Len(t, day.Slots, 2)
	assert.Equal(t, int64(1), day.Slots[0].SlotID)
	assert.True(t, day.Slots[0].IsAvailable, "cancelled appointment frees the slot")
	assert.Equal(t, SlotStatusAvailable, day.Slots[0].Status)
	assert.Equal(t, int64(3), day.Slots[1].SlotID)
	assert.False(t, day.Slots[1].IsAvailable)
	assert.Equal(t, SlotStatusBooked, day.Slots[1].Status)
	assert.Equal(t, 1, day.AvailableCount)
	assert.Equal(t, 2, day.TotalSlots)
}

func TestResolveAvailabilityErrors(t *testing.T) {
	store := newMemStore()
	r := NewAvailabilityResolver(store, testOptions())
	ctx := context.Background()
	today := testToday()

	_, err := r.ResolveAvailability(ctx, 10, today.AddDays(-1))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CodeDateInPast, verr.Code)

	_, err = r.ResolveAvailability(ctx, 10, today.AddDays(8))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CodeDateTooFarAhead, verr.Code)

	_, err = r.ResolveAvailability(ctx, 404, today)
	assert.True(t, IsNotFound(err))

	day, err := r.ResolveAvailability(ctx, 10, today.AddDays(7))
	require.NoError(t, err)
	assert.Empty(t, day.Slots)
}

func TestResolverAgreesWithSlotCheck(t *testing.T) {
	store := newMemStore()
	r := NewAvailabilityResolver(store, testOptions())
	ctx := context.Background()

	for day := 0; day < 7; day++ {
		for slot := int64(1); slot <= 4; slot++ {
			store.addSchedule(10, day, slot, (int64(day)+slot)%3 != 0)
		}
	}
	today := testToday()
	store.addAppointment(7, 10, 1, today, statusPtr(StatusScheduled))
	store.addAppointment(8, 10, 2, today.AddDays(1), statusPtr(StatusCompleted))
	store.addAppointment(9, 10, 4, today.AddDays(2), statusPtr(StatusCancelled))
	store.addAppointment(7, 10, 3, today.AddDays(3), nil)

	for offset := 0; offset <= 7; offset++ {
		date := today.AddDays(offset)
		day, err := r.ResolveAvailability(ctx, 10, date)
		require.NoError(t, err)

		for _, s := range day.Slots {
			check, err := r.CheckSlotAvailability(ctx, 10, s.SlotID, date)
			require.NoError(t, err)
			assert.Equal(t, s.IsAvailable, check.IsAvailable, "date %s slot %d", date, s.SlotID)
			if s.IsAvailable {
				assert.Equal(t, ReasonAvailable, check.Reason)
			} else {
				assert.Equal(t, ReasonAlreadyBooked, check.Reason)
			}
		}
	}
}

func TestCheckSlotAvailabilityReasons(t *testing.T) {
	store := newMemStore()
	r := NewAvailabilityResolver(store, testOptions())
	ctx := context.Background()
	monday := testToday()

	store.addSchedule(10, 1, 1, true)
	store.addSchedule(10, 1, 2, false)
	store.addSchedule(10, 1, 3, true)
	store.addAppointment(7, 10, 3, monday, statusPtr(StatusScheduled))

	tests := []struct {
		slot   int64
		reason SlotReason
	}{
		{1, ReasonAvailable},
		{2, ReasonScheduleInactive},
		{3, ReasonAlreadyBooked},
		{4, ReasonNotInSchedule},
	}
	for _, tt := range tests {
		check, err := r.CheckSlotAvailability(ctx, 10, tt.slot, monday)
		require.NoError(t, err)
		assert.Equal(t, tt.reason, check.Reason, "slot %d", tt.slot)
		assert.Equal(t, tt.reason == ReasonAvailable, check.IsAvailable)
		if tt.reason == ReasonNotInSchedule {
			assert.Nil(t, check.SlotDetails)
		} else {
			require.NotNil(t, check.SlotDetails)
			assert.Equal(t, tt.slot, check.SlotDetails.SlotID)
		}
	}

	_, err := r.CheckSlotAvailability(ctx, 10, 1, monday.AddDays(8))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CodeDateTooFarAhead, verr.Code)
}

func TestResolveWeekAvailability(t *testing.T) {
	store := newMemStore()
	r := NewAvailabilityResolver(store, testOptions())
	ctx := context.Background()
	today := testToday()

	_, err := r.ResolveWeekAvailability(ctx, 10)
	assert.True(t, IsNotFound(err), "no active schedules")

	store.addSchedule(10, 1, 1, true) // Monday
	store.addSchedule(10, 1, 2, true)
	store.addSchedule(10, 3, 1, true) // Wednesday
	store.addSchedule(10, 5, 1, false)
	store.addAppointment(7, 10, 2, today, statusPtr(StatusScheduled))

	week, err := r.ResolveWeekAvailability(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, today, week.SchedulePeriod.From)
	assert.Equal(t, today.AddDays(6), week.SchedulePeriod.To)
	require.Len(t, week.Availability, 2)

	mon := week.Availability[0]
	assert.Equal(t, today, mon.Date)
	assert.Equal(t, "Monday", mon.DayName)
	assert.Equal(t, 2, mon.TotalSlots)
	assert.Equal(t, 1, mon.AvailableSlots)

	wed := week.Availability[1]
	assert.Equal(t, today.AddDays(2), wed.Date)
	assert.Equal(t, 1, wed.AvailableSlots)

	_, err = r.ResolveWeekAvailability(ctx, 404)
	assert.True(t, IsNotFound(err))
}
