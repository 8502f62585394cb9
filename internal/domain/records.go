// Package domain decodes store documents into the typed records the
// reconciliation jobs operate on. Field names match the documents written by
// the mobile application.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/lounge-reconciler/internal/docstore"
)

// Collections.
const (
	CollectionAppointments  = "appointments"
	CollectionAttendance    = "attendance"
	CollectionUsers         = "users"
	CollectionNotifications = "notifications"
)

// Appointment fields.
const (
	FieldAppointmentTime = "appointmentTimeUTC"
	FieldConciergeID     = "conciergeId"
	FieldSessionStarted  = "conciergeSessionStarted"
	FieldReminderSent    = "conciergeReminderSent"
	FieldReminderSentAt  = "conciergeReminderSentAt"
	FieldClientName      = "clientName"
	FieldVenue           = "venue"
	FieldReferenceNumber = "referenceNumber"
)

// Attendance fields.
const (
	FieldUserID         = "userId"
	FieldName           = "name"
	FieldRole           = "role"
	FieldIsClockedIn    = "isClockedIn"
	FieldClockInTime    = "clockInTime"
	FieldClockOutTime   = "clockOutTime"
	FieldIsOnBreak      = "isOnBreak"
	FieldBreakReason    = "breakReason"
	FieldBreakStartTime = "breakStartTime"
	FieldBreakEndTime   = "breakEndTime"
	FieldAutoClockedOut = "autoClockedOut"
	FieldHistory        = "history"
)

// Actor profile fields.
const (
	FieldPushToken   = "fcmToken"
	FieldDisplayName = "name"
)

// MissingFieldError reports a record that cannot be processed because a
// required field is absent or has the wrong type.
type MissingFieldError struct {
	Collection string
	ID         string
	Field      string
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("domain: %s/%s is missing required field %q", e.Collection, e.ID, e.Field)
}

// Appointment is a scheduled client visit escorted by a concierge.
type Appointment struct {
	ID              string
	Time            time.Time
	ConciergeID     string
	ClientName      string
	Venue           string
	ReferenceNumber string
	SessionStarted  bool
	ReminderSent    bool
}

// DecodeAppointment requires the appointment time and concierge reference.
func DecodeAppointment(doc docstore.Document) (Appointment, error) {
	at, ok := doc.Time(FieldAppointmentTime)
	if !ok {
		return Appointment{}, &MissingFieldError{Collection: CollectionAppointments, ID: doc.ID, Field: FieldAppointmentTime}
	}
	conciergeID, ok := doc.String(FieldConciergeID)
	if !ok {
		return Appointment{}, &MissingFieldError{Collection: CollectionAppointments, ID: doc.ID, Field: FieldConciergeID}
	}
	return Appointment{
		ID:              doc.ID,
		Time:            at,
		ConciergeID:     conciergeID,
		ClientName:      strings.TrimSpace(doc.StringOr(FieldClientName, "")),
		Venue:           strings.TrimSpace(doc.StringOr(FieldVenue, "")),
		ReferenceNumber: doc.StringOr(FieldReferenceNumber, ""),
		SessionStarted:  doc.Flag(FieldSessionStarted),
		ReminderSent:    doc.Flag(FieldReminderSent),
	}, nil
}

// Attendance is one clock-in entry.
type Attendance struct {
	ID          string
	UserID      string
	Name        string
	Role        string
	ClockInTime time.Time
	IsClockedIn bool
	IsOnBreak   bool
}

// DecodeAttendance requires the clock-in time. A missing user id is tolerated:
// the record can still be closed, it just has nobody to notify.
func DecodeAttendance(doc docstore.Document) (Attendance, error) {
	clockIn, ok := doc.Time(FieldClockInTime)
	if !ok {
		return Attendance{}, &MissingFieldError{Collection: CollectionAttendance, ID: doc.ID, Field: FieldClockInTime}
	}
	return Attendance{
		ID:          doc.ID,
		UserID:      doc.StringOr(FieldUserID, ""),
		Name:        doc.StringOr(FieldName, ""),
		Role:        doc.StringOr(FieldRole, ""),
		ClockInTime: clockIn,
		IsClockedIn: doc.Flag(FieldIsClockedIn),
		IsOnBreak:   doc.Flag(FieldIsOnBreak),
	}, nil
}

// ActorProfile is a user or concierge that receives notifications.
type ActorProfile struct {
	ID    string
	Name  string
	Token string
}

// HasToken reports whether the profile can receive push messages.
func (a ActorProfile) HasToken() bool {
	return strings.TrimSpace(a.Token) != ""
}

// DecodeActor never fails; absent fields decode to empty values.
func DecodeActor(doc docstore.Document) ActorProfile {
	return ActorProfile{
		ID:    doc.ID,
		Name:  strings.TrimSpace(doc.StringOr(FieldDisplayName, "")),
		Token: doc.StringOr(FieldPushToken, ""),
	}
}

// History events.
const (
	EventAutoClockOut = "auto_clock_out"
)

// HistoryEntry is one audit line appended to an attendance record.
type HistoryEntry struct {
	ID        string
	Event     string
	Timestamp time.Time
	Name      string
	Role      string
	UserID    string
}

// Fields renders the entry in its stored shape.
func (h HistoryEntry) Fields() map[string]any {
	return map[string]any{
		"id":        h.ID,
		"event":     h.Event,
		"timestamp": h.Timestamp.UTC(),
		"name":      h.Name,
		"role":      h.Role,
		"userId":    h.UserID,
	}
}

// History decodes the audit list of an attendance document. Entries that are
// not maps are ignored.
func History(doc docstore.Document) []HistoryEntry {
	raw, _ := doc.Fields[FieldHistory].([]any)
	out := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := docstore.Document{Fields: fields}
		ts, _ := entry.Time("timestamp")
		out = append(out, HistoryEntry{
			ID:        entry.StringOr("id", ""),
			Event:     entry.StringOr("event", ""),
			Timestamp: ts,
			Name:      entry.StringOr("name", ""),
			Role:      entry.StringOr("role", ""),
			UserID:    entry.StringOr("userId", ""),
		})
	}
	return out
}
