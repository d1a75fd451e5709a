package notify

import (
	"fmt"
	"strings"
	"time"
)

// BookingConfirmation carries the details of a booked appointment for
// the front office notification email.
type BookingConfirmation struct {
	PracticeName    string
	PatientName     string
	PatientPhone    string
	AppointmentName string
	ProviderName    string
	StartTime       time.Time
	Timezone        string
	AppointmentID   string
	BookedByVoice   bool
}

// ComposeBookingEmail builds the front office notification for a booking.
func ComposeBookingEmail(to string, c BookingConfirmation) EmailMessage {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		loc = time.UTC
	}
	when := c.StartTime.In(loc).Format("Monday, January 2 at 3:04 PM")

	var b strings.Builder
	fmt.Fprintf(&b, "New appointment booked for %s.\n\n", c.PracticeName)
	fmt.Fprintf(&b, "Patient: %s\n", c.PatientName)
	if c.PatientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", c.PatientPhone)
	}
	fmt.Fprintf(&b, "Visit: %s\n", c.AppointmentName)
	if c.ProviderName != "" {
		fmt.Fprintf(&b, "Provider: %s\n", c.ProviderName)
	}
	fmt.Fprintf(&b, "When: %s\n", when)
	fmt.Fprintf(&b, "Appointment ID: %s\n", c.AppointmentID)
	if c.BookedByVoice {
		b.WriteString("\nBooked by the phone assistant.\n")
	}

	return EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("New booking: %s, %s", c.PatientName, when),
		Body:    b.String(),
	}
}
