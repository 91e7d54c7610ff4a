package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Monday.
var testNow = time.Date(2025, time.June, 9, 10, 0, 0, 0, time.Local)

func testOptions() Options {
	return Options{HorizonDays: 7, Clock: func() time.Time { return testNow }}
}

func testToday() Date { return DateOf(testNow) }

// memStore is an in-memory implementation of every repository interface.
// Booking transactions are serialized on txMu.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	slots         []TimeSlot
	doctors       map[int64]Doctor
	patients      map[int64]string
	schedules     map[int64]*DoctorSchedule
	appointments  map[int64]*Appointment
	consultations map[int64]*Consultation
	statuses      map[int64]string
	events        []EventLog
	nextID        int64

	slotListCalls int
	commits       int
	rollbacks     int
}

func newMemStore() *memStore {
	s := &memStore{
		doctors: map[int64]Doctor{
			10: {ID: 10, Name: "Gregory House", Specialization: "Diagnostics", ConsultationFee: 200},
			11: {ID: 11, Name: "Lisa Cuddy", Specialization: "Endocrinology", ConsultationFee: 150},
		},
		patients:      map[int64]string{7: "Ann Perkins", 8: "Ben Wyatt", 9: "Chris Traeger"},
		schedules:     map[int64]*DoctorSchedule{},
		appointments:  map[int64]*Appointment{},
		consultations: map[int64]*Consultation{},
		statuses:      map[int64]string{1: "Scheduled", 2: "Completed", 3: "Cancelled"},
		nextID:        100,
	}
	start := time.Date(0, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 16; i++ {
		from := start.Add(time.Duration(i) * 30 * time.Minute)
		s.slots = append(s.slots, TimeSlot{
			ID:        int64(i + 1),
			Number:    i + 1,
			StartTime: from.Format("15:04:05"),
			EndTime:   from.Add(30 * time.Minute).Format("15:04:05"),
		})
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) slot(id int64) (TimeSlot, bool) {
	for _, sl := range s.slots {
		if sl.ID == id {
			return sl, true
		}
	}
	return TimeSlot{}, false
}

// addSchedule seeds a schedule row directly.
func (s *memStore) addSchedule(doctorID int64, day int, slotID int64, active bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.schedules[id] = &DoctorSchedule{ID: id, DoctorID: doctorID, DayOfWeek: day, SlotID: slotID, IsActive: active, CreatedAt: testNow, UpdatedAt: testNow}
	return id
}

// addAppointment seeds an appointment directly.
func (s *memStore) addAppointment(patientID, doctorID, slotID int64, date Date, status *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.appointments[id] = &Appointment{ID: id, PatientID: patientID, DoctorID: doctorID, Date: date, SlotID: slotID, StatusID: status, CreatedAt: testNow}
	return id
}

func statusPtr(v int64) *int64 { return &v }

func cancelled(a *Appointment) bool {
	return a.StatusID != nil && *a.StatusID == StatusCancelled
}

func (s *memStore) ListTimeSlots(context.Context) ([]TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotListCalls++
	return append([]TimeSlot(nil), s.slots...), nil
}

func (s *memStore) GetDoctor(_ context.Context, id int64) (*Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[id]
	if !ok {
		return nil, &NotFoundError{Resource: "doctor"}
	}
	return &d, nil
}

func (s *memStore) tupleTaken(skip, doctorID int64, day int, slotID int64) bool {
	for _, sc := range s.schedules {
		if sc.ID != skip && sc.DoctorID == doctorID && sc.DayOfWeek == day && sc.SlotID == slotID {
			return true
		}
	}
	return false
}

func (s *memStore) CreateSchedule(_ context.Context, in DoctorSchedule) (*DoctorSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tupleTaken(0, in.DoctorID, in.DayOfWeek, in.SlotID) {
		return nil, &ConflictError{Code: CodeScheduleExists, Message: "exists"}
	}
	in.ID = s.id()
	in.CreatedAt, in.UpdatedAt = testNow, testNow
	s.schedules[in.ID] = &in
	out := in
	return &out, nil
}

func (s *memStore) view(sc *DoctorSchedule) ScheduleView {
	sl, _ := s.slot(sc.SlotID)
	return ScheduleView{
		DoctorSchedule: *sc,
		DoctorName:     s.doctors[sc.DoctorID].Name,
		DayName:        DayName(sc.DayOfWeek),
		SlotNumber:     sl.Number,
		StartTime:      sl.StartTime,
		EndTime:        sl.EndTime,
	}
}

func (s *memStore) GetScheduleView(_ context.Context, id int64) (*ScheduleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, &NotFoundError{Resource: "schedule"}
	}
	v := s.view(sc)
	return &v, nil
}

func (s *memStore) ListScheduleViews(_ context.Context, f ScheduleFilter) ([]ScheduleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ScheduleView{}
	for _, sc := range s.schedules {
		if f.DoctorID != nil && sc.DoctorID != *f.DoctorID {
			continue
		}
		if f.DayOfWeek != nil && sc.DayOfWeek != *f.DayOfWeek {
			continue
		}
		out = append(out, s.view(sc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (s *memStore) UpdateSchedule(_ context.Context, id int64, upd ScheduleUpdate) (*DoctorSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, &NotFoundError{Resource: "schedule"}
	}
	next := *sc
	if upd.DayOfWeek != nil {
		next.DayOfWeek = *upd.DayOfWeek
	}
	if upd.SlotID != nil {
		next.SlotID = *upd.SlotID
	}
	if upd.IsActive != nil {
		next.IsActive = *upd.IsActive
	}
	if s.tupleTaken(id, next.DoctorID, next.DayOfWeek, next.SlotID) {
		return nil, &ConflictError{Code: CodeScheduleExists, Message: "exists"}
	}
	next.UpdatedAt = sc.UpdatedAt.Add(time.Minute)
	*sc = next
	return &next, nil
}

func (s *memStore) DeleteSchedule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return &NotFoundError{Resource: "schedule"}
	}
	delete(s.schedules, id)
	return nil
}

func (s *memStore) scheduleSlot(sc *DoctorSchedule) ScheduleSlot {
	sl, _ := s.slot(sc.SlotID)
	return ScheduleSlot{ScheduleID: sc.ID, SlotID: sc.SlotID, StartTime: sl.StartTime, EndTime: sl.EndTime, IsActive: sc.IsActive}
}

func (s *memStore) ActiveScheduleSlots(_ context.Context, doctorID int64, day int) ([]ScheduleSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ScheduleSlot{}
	for _, sc := range s.schedules {
		if sc.DoctorID == doctorID && sc.DayOfWeek == day && sc.IsActive {
			out = append(out, s.scheduleSlot(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (s *memStore) ScheduleForSlot(_ context.Context, doctorID int64, day int, slotID int64) (*ScheduleSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.schedules {
		if sc.DoctorID == doctorID && sc.DayOfWeek == day && sc.SlotID == slotID {
			ss := s.scheduleSlot(sc)
			return &ss, nil
		}
	}
	return nil, nil
}

func (s *memStore) BookedSlotIDs(_ context.Context, doctorID int64, date Date) (map[int64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	booked := map[int64]struct{}{}
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Date == date && !cancelled(a) {
			booked[a.SlotID] = struct{}{}
		}
	}
	return booked, nil
}

func (s *memStore) HasActiveSchedules(_ context.Context, doctorID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.schedules {
		if sc.DoctorID == doctorID && sc.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) BeginBooking(context.Context) (BookingTx, error) {
	s.txMu.Lock()
	return &memTx{s: s}, nil
}

func (s *memStore) appointmentView(a *Appointment) AppointmentView {
	sl, _ := s.slot(a.SlotID)
	d := s.doctors[a.DoctorID]
	v := AppointmentView{
		ID:              a.ID,
		PatientID:       a.PatientID,
		PatientName:     s.patients[a.PatientID],
		DoctorID:        a.DoctorID,
		DoctorName:      d.Name,
		Specialization:  d.Specialization,
		Date:            a.Date,
		SlotID:          a.SlotID,
		StartTime:       sl.StartTime,
		EndTime:         sl.EndTime,
		StatusID:        a.StatusID,
		ConsultationFee: d.ConsultationFee,
		CreatedAt:       a.CreatedAt,
	}
	if a.StatusID != nil {
		v.StatusName = s.statuses[*a.StatusID]
	}
	return v
}

func (s *memStore) GetAppointmentView(_ context.Context, id int64) (*AppointmentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, &NotFoundError{Resource: "appointment"}
	}
	v := s.appointmentView(a)
	return &v, nil
}

func (s *memStore) GetAppointment(_ context.Context, id int64) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, &NotFoundError{Resource: "appointment"}
	}
	out := *a
	return &out, nil
}

func (s *memStore) InsertConsultation(_ context.Context, in ConsultationInput) (*Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Consultation{
		ID:               s.id(),
		AppointmentID:    in.AppointmentID,
		DoctorID:         in.DoctorID,
		PatientID:        in.PatientID,
		BloodPressure:    in.BloodPressure,
		Temperature:      in.Temperature,
		OxygenSaturation: in.OxygenSaturation,
		Diagnosis:        in.Diagnosis,
		ConsultationDate: testNow,
	}
	s.consultations[c.ID] = c
	out := *c
	return &out, nil
}

func (s *memStore) GetConsultation(_ context.Context, id int64) (*Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok {
		return nil, &NotFoundError{Resource: "consultation"}
	}
	out := *c
	return &out, nil
}

func (s *memStore) ConsultationByAppointment(_ context.Context, appointmentID int64) (*Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Consultation
	for _, c := range s.consultations {
		if c.AppointmentID == appointmentID && (latest == nil || c.ID > latest.ID) {
			latest = c
		}
	}
	if latest == nil {
		return nil, &NotFoundError{Resource: "consultation"}
	}
	out := *latest
	return &out, nil
}

func (s *memStore) SetInitialStatus(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.StatusID != nil {
		return false, nil
	}
	a.StatusID = statusPtr(StatusScheduled)
	return true, nil
}

func (s *memStore) CompleteAppointment(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || (a.StatusID != nil && *a.StatusID != StatusScheduled) {
		return false, nil
	}
	a.StatusID = statusPtr(StatusCompleted)
	return true, nil
}

func (s *memStore) StatusName(_ context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.statuses[id]
	if !ok {
		return "", &NotFoundError{Resource: "appointment status"}
	}
	return name, nil
}

func (s *memStore) StatusNames(context.Context) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]string, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) sortedViews(keep func(*Appointment) bool) []AppointmentView {
	out := []AppointmentView{}
	for _, a := range s.appointments {
		if keep(a) {
			out = append(out, s.appointmentView(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (s *memStore) ListDoctorAppointments(_ context.Context, doctorID int64, from, to *Date) ([]AppointmentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedViews(func(a *Appointment) bool {
		return a.DoctorID == doctorID &&
			a.StatusID != nil && *a.StatusID == StatusScheduled &&
			(from == nil || !a.Date.Before(*from)) &&
			(to == nil || !a.Date.After(*to))
	}), nil
}

func (s *memStore) ListPatientAppointments(_ context.Context, patientID int64, from Date) ([]AppointmentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedViews(func(a *Appointment) bool {
		return a.PatientID == patientID && !a.Date.Before(from) && !cancelled(a)
	}), nil
}

func (s *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}

// memTx buffers writes until Commit.
type memTx struct {
	s       *memStore
	pending []*Appointment
	events  []EventLog
	done    bool
}

func (t *memTx) ScheduleForSlot(ctx context.Context, doctorID int64, day int, slotID int64) (*ScheduleSlot, error) {
	return t.s.ScheduleForSlot(ctx, doctorID, day, slotID)
}

func (t *memTx) BookedSlotIDs(ctx context.Context, doctorID int64, date Date) (map[int64]struct{}, error) {
	return t.s.BookedSlotIDs(ctx, doctorID, date)
}

func (t *memTx) PatientExists(_ context.Context, id int64) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.patients[id]
	return ok, nil
}

func (t *memTx) DoctorExists(_ context.Context, id int64) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.doctors[id]
	return ok, nil
}

func (t *memTx) HasPatientBooking(_ context.Context, patientID, doctorID int64, date Date) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, a := range t.s.appointments {
		if a.PatientID == patientID && a.DoctorID == doctorID && a.Date == date && !cancelled(a) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, ex := range t.s.appointments {
		if cancelled(ex) || ex.Date != a.Date {
			continue
		}
		if ex.DoctorID == a.DoctorID && ex.SlotID == a.SlotID {
			return nil, &ConflictError{Code: CodeSlotAlreadyBooked, Message: "unique violation"}
		}
		if ex.DoctorID == a.DoctorID && ex.PatientID == a.PatientID {
			return nil, &ConflictError{Code: CodeDuplicateBooking, Message: "unique violation"}
		}
	}
	a.ID = t.s.id()
	a.CreatedAt = testNow
	t.pending = append(t.pending, &a)
	out := a
	return &out, nil
}

func (t *memTx) InsertEvent(_ context.Context, ev EventLog) error {
	t.events = append(t.events, ev)
	return nil
}

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return fmt.Errorf("tx already closed")
	}
	t.done = true
	t.s.mu.Lock()
	for _, a := range t.pending {
		t.s.appointments[a.ID] = a
	}
	t.s.events = append(t.s.events, t.events...)
	t.s.commits++
	t.s.mu.Unlock()
	t.s.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Lock()
	t.s.rollbacks++
	t.s.mu.Unlock()
	t.s.txMu.Unlock()
	return nil
}

func (s *memStore) counts() (commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits, s.rollbacks
}
