package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/lounge-reconciler/internal/domain"
)

var (
	appointmentCounter uint64
	attendanceCounter  uint64
	actorCounter       uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Seeder is satisfied by the in-memory and SQLite stores.
type Seeder interface {
	Put(collection, id string, fields map[string]any)
}

// -------------------------- Appointment fixtures --------------------------

// AppointmentFixture is a deterministic appointment document.
type AppointmentFixture struct {
	ID              string
	Time            time.Time
	ConciergeID     string
	ClientName      string
	Venue           string
	ReferenceNumber string
	SessionStarted  *bool
	ReminderSent    *bool
	omit            map[string]bool
}

// AppointmentOption configures the generated appointment fixture.
type AppointmentOption func(*AppointmentFixture)

// NewAppointmentFixture returns an appointment five minutes after
// ReferenceTime with an unstarted session.
func NewAppointmentFixture(opts ...AppointmentOption) AppointmentFixture {
	idx := atomic.AddUint64(&appointmentCounter, 1)
	started := false
	fixture := AppointmentFixture{
		ID:              fmt.Sprintf("appt-%03d", idx),
		Time:            referenceTime.Add(5 * time.Minute),
		ConciergeID:     "concierge-001",
		ClientName:      fmt.Sprintf("Client %03d", idx),
		Venue:           "Lounge A",
		ReferenceNumber: fmt.Sprintf("VIP-%03d", idx),
		SessionStarted:  &started,
		omit:            map[string]bool{},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAppointmentID overrides the appointment identifier.
func WithAppointmentID(id string) AppointmentOption {
	return func(f *AppointmentFixture) { f.ID = id }
}

// WithAppointmentTime overrides the appointment time.
func WithAppointmentTime(t time.Time) AppointmentOption {
	return func(f *AppointmentFixture) { f.Time = t }
}

// WithConcierge overrides the assigned concierge.
func WithConcierge(id string) AppointmentOption {
	return func(f *AppointmentFixture) { f.ConciergeID = id }
}

// WithClient overrides the client name and venue.
func WithClient(name, venue string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.ClientName = name
		f.Venue = venue
	}
}

// WithSessionStarted sets the session flag.
func WithSessionStarted(started bool) AppointmentOption {
	return func(f *AppointmentFixture) { f.SessionStarted = &started }
}

// WithReminderSent sets the reminder marker.
func WithReminderSent(sent bool) AppointmentOption {
	return func(f *AppointmentFixture) { f.ReminderSent = &sent }
}

// WithoutAppointmentField drops field from the rendered document.
func WithoutAppointmentField(field string) AppointmentOption {
	return func(f *AppointmentFixture) { f.omit[field] = true }
}

// Fields renders the fixture as a stored document.
func (f AppointmentFixture) Fields() map[string]any {
	fields := map[string]any{
		domain.FieldAppointmentTime: f.Time,
		domain.FieldConciergeID:     f.ConciergeID,
		domain.FieldClientName:      f.ClientName,
		domain.FieldVenue:           f.Venue,
		domain.FieldReferenceNumber: f.ReferenceNumber,
	}
	if f.SessionStarted != nil {
		fields[domain.FieldSessionStarted] = *f.SessionStarted
	}
	if f.ReminderSent != nil {
		fields[domain.FieldReminderSent] = *f.ReminderSent
	}
	return without(fields, f.omit)
}

// Seed writes the fixture into store and returns it.
func (f AppointmentFixture) Seed(store Seeder) AppointmentFixture {
	store.Put(domain.CollectionAppointments, f.ID, f.Fields())
	return f
}

// -------------------------- Attendance fixtures ---------------------------

// AttendanceFixture is a deterministic attendance document.
type AttendanceFixture struct {
	ID          string
	UserID      string
	Name        string
	Role        string
	ClockInTime time.Time
	IsClockedIn bool
	OnBreak     bool
	History     []domain.HistoryEntry
	omit        map[string]bool
}

// AttendanceOption configures the generated attendance fixture.
type AttendanceOption func(*AttendanceFixture)

// NewAttendanceFixture returns a record clocked in two hours before
// ReferenceTime.
func NewAttendanceFixture(opts ...AttendanceOption) AttendanceFixture {
	idx := atomic.AddUint64(&attendanceCounter, 1)
	fixture := AttendanceFixture{
		ID:          fmt.Sprintf("att-%03d", idx),
		UserID:      fmt.Sprintf("user-%03d", idx),
		Name:        fmt.Sprintf("Staff %03d", idx),
		Role:        "concierge",
		ClockInTime: referenceTime.Add(-2 * time.Hour),
		IsClockedIn: true,
		omit:        map[string]bool{},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAttendanceID overrides the record identifier.
func WithAttendanceID(id string) AttendanceOption {
	return func(f *AttendanceFixture) { f.ID = id }
}

// WithAttendanceUser overrides the owning user.
func WithAttendanceUser(id string) AttendanceOption {
	return func(f *AttendanceFixture) { f.UserID = id }
}

// WithClockIn overrides the clock-in time.
func WithClockIn(t time.Time) AttendanceOption {
	return func(f *AttendanceFixture) { f.ClockInTime = t }
}

// WithClockedIn sets the clocked-in flag.
func WithClockedIn(clockedIn bool) AttendanceOption {
	return func(f *AttendanceFixture) { f.IsClockedIn = clockedIn }
}

// WithBreak puts the record on break.
func WithBreak() AttendanceOption {
	return func(f *AttendanceFixture) { f.OnBreak = true }
}

// WithHistory seeds existing audit entries.
func WithHistory(entries ...domain.HistoryEntry) AttendanceOption {
	return func(f *AttendanceFixture) { f.History = append(f.History, entries...) }
}

// WithoutAttendanceField drops field from the rendered document.
func WithoutAttendanceField(field string) AttendanceOption {
	return func(f *AttendanceFixture) { f.omit[field] = true }
}

// Fields renders the fixture as a stored document.
func (f AttendanceFixture) Fields() map[string]any {
	history := make([]any, 0, len(f.History))
	for _, entry := range f.History {
		history = append(history, entry.Fields())
	}
	fields := map[string]any{
		domain.FieldUserID:      f.UserID,
		domain.FieldName:        f.Name,
		domain.FieldRole:        f.Role,
		domain.FieldClockInTime: f.ClockInTime,
		domain.FieldIsClockedIn: f.IsClockedIn,
		domain.FieldIsOnBreak:   f.OnBreak,
		domain.FieldHistory:     history,
	}
	if f.OnBreak {
		fields[domain.FieldBreakReason] = "lunch"
		fields[domain.FieldBreakStartTime] = f.ClockInTime.Add(time.Hour)
	}
	return without(fields, f.omit)
}

// Seed writes the fixture into store and returns it.
func (f AttendanceFixture) Seed(store Seeder) AttendanceFixture {
	store.Put(domain.CollectionAttendance, f.ID, f.Fields())
	return f
}

// ----------------------------- Actor fixtures -----------------------------

// ActorFixture is a user profile with an optional push token.
type ActorFixture struct {
	ID    string
	Name  string
	Token string
}

// ActorOption configures the generated actor fixture.
type ActorOption func(*ActorFixture)

// NewActorFixture returns a profile with a token.
func NewActorFixture(opts ...ActorOption) ActorFixture {
	idx := atomic.AddUint64(&actorCounter, 1)
	fixture := ActorFixture{
		ID:    fmt.Sprintf("actor-%03d", idx),
		Name:  fmt.Sprintf("Actor %03d", idx),
		Token: fmt.Sprintf("token-%03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithActorID overrides the profile identifier.
func WithActorID(id string) ActorOption {
	return func(f *ActorFixture) { f.ID = id }
}

// WithActorToken overrides the push token. An empty token is not rendered.
func WithActorToken(token string) ActorOption {
	return func(f *ActorFixture) { f.Token = token }
}

// Fields renders the fixture as a stored document.
func (f ActorFixture) Fields() map[string]any {
	fields := map[string]any{domain.FieldDisplayName: f.Name}
	if f.Token != "" {
		fields[domain.FieldPushToken] = f.Token
	}
	return fields
}

// Profile returns the decoded profile.
func (f ActorFixture) Profile() domain.ActorProfile {
	return domain.ActorProfile{ID: f.ID, Name: f.Name, Token: f.Token}
}

// Seed writes the fixture into store and returns it.
func (f ActorFixture) Seed(store Seeder) ActorFixture {
	store.Put(domain.CollectionUsers, f.ID, f.Fields())
	return f
}

func without(fields map[string]any, omit map[string]bool) map[string]any {
	for field := range omit {
		delete(fields, field)
	}
	return fields
}
