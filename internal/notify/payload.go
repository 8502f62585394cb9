package notify

import (
	"fmt"
	"time"

	"github.com/example/lounge-reconciler/internal/domain"
	"github.com/example/lounge-reconciler/internal/push"
)

// Notification types carried in the data map for client side routing.
const (
	TypeEscortReminder = "escort_reminder"
	TypeAutoClockOut   = "auto_clock_out"
)

const (
	fallbackClient = "your client"
	fallbackVenue  = "the lounge"
	fallbackTime   = "shortly"

	reminderSound   = "bell_ring"
	reminderChannel = "alarm"
	reminderIcon    = "cc_logo"
	reminderTTL     = 10 * time.Minute

	noticeChannel = "attendance"
	noticeTTL     = 12 * time.Hour
)

// Payload is a rendered notification before it is addressed to a token.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
	Hints push.Hints
}

// Message addresses the payload to token.
func (p Payload) Message(token string) push.Message {
	data := make(map[string]string, len(p.Data))
	for k, v := range p.Data {
		data[k] = v
	}
	return push.Message{Token: token, Title: p.Title, Body: p.Body, Data: data, Hints: p.Hints}
}

// EscortReminder renders the alarm sent to a concierge ahead of an
// appointment. Times are formatted in loc.
func EscortReminder(appt domain.Appointment, actor domain.ActorProfile, loc *time.Location) Payload {
	client := appt.ClientName
	if client == "" {
		client = fallbackClient
	}
	venue := appt.Venue
	if venue == "" {
		venue = fallbackVenue
	}
	when := fallbackTime
	if !appt.Time.IsZero() {
		when = "at " + appt.Time.In(zone(loc)).Format("15:04")
	}

	body := fmt.Sprintf("Please remember to meet %s at %s %s.", client, venue, when)
	if actor.Name != "" {
		body = fmt.Sprintf("%s, please remember to meet %s at %s %s.", actor.Name, client, venue, when)
	}

	data := map[string]string{
		"notificationType": TypeEscortReminder,
		"messageType":      TypeEscortReminder,
		"appointmentId":    appt.ID,
		"conciergeId":      appt.ConciergeID,
		"sound":            reminderSound,
	}
	if appt.ReferenceNumber != "" {
		data["referenceNumber"] = appt.ReferenceNumber
	}
	if !appt.Time.IsZero() {
		data["appointmentTime"] = appt.Time.UTC().Format(time.RFC3339)
	}

	return Payload{
		Title: "Escort VIP Client",
		Body:  body,
		Data:  data,
		Hints: push.Hints{
			Priority:          push.PriorityHigh,
			Sound:             reminderSound,
			Icon:              reminderIcon,
			AndroidChannel:    reminderChannel,
			Visibility:        "public",
			APNSCategory:      reminderChannel,
			InterruptionLevel: "time-sensitive",
			TTL:               reminderTTL,
		},
	}
}

// AutoClockOutNotice renders the message for a user whose attendance record
// was closed at boundary.
func AutoClockOutNotice(rec domain.Attendance, boundary time.Time, loc *time.Location) Payload {
	return Payload{
		Title: "Auto Clock-Out",
		Body:  fmt.Sprintf("You were automatically clocked out at %s because you forgot to clock out.", describeBoundary(boundary, loc)),
		Data: map[string]string{
			"notificationType": TypeAutoClockOut,
			"messageType":      TypeAutoClockOut,
			"attendanceId":     rec.ID,
			"userId":           rec.UserID,
			"clockOutTime":     boundary.UTC().Format(time.RFC3339),
		},
		Hints: push.Hints{
			Priority:       push.PriorityNormal,
			Sound:          "default",
			AndroidChannel: noticeChannel,
			Visibility:     "private",
			TTL:            noticeTTL,
		},
	}
}

func describeBoundary(boundary time.Time, loc *time.Location) string {
	if boundary.IsZero() {
		return "the end of the day"
	}
	local := boundary.In(zone(loc))
	if local.Hour() == 0 && local.Minute() == 0 {
		return "midnight"
	}
	return local.Format("15:04")
}

func zone(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
