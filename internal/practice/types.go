// Package practice holds per-practice configuration: which appointment
// types a practice offers, how the assistant speaks about them, and the
// providers and operatories slots can be booked against.
package practice

import "time"

type Practice struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Timezone    string    `json:"timezone"`
	NotifyEmail string    `json:"notify_email"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AppointmentType pairs a NexHealth appointment type with the voice
// metadata the assistant needs: what to call it out loud, which caller
// phrasings map to it, and whether it should be treated as urgent.
type AppointmentType struct {
	ID              string    `json:"id"`
	PracticeID      string    `json:"practice_id"`
	NexHealthID     string    `json:"nexhealth_id"`
	Name            string    `json:"name"`
	SpokenName      string    `json:"spoken_name"`
	DurationMinutes int       `json:"duration_minutes"`
	Keywords        []string  `json:"keywords"`
	Urgent          bool      `json:"urgent"`
	Bookable        bool      `json:"bookable"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Spoken returns the name the assistant should say for this type.
func (t AppointmentType) Spoken() string {
	if t.SpokenName != "" {
		return t.SpokenName
	}
	return t.Name
}

type Provider struct {
	ID                 string `json:"id"`
	PracticeID         string `json:"practice_id"`
	NexHealthID        string `json:"nexhealth_id"`
	Name               string `json:"name"`
	AcceptsNewPatients bool   `json:"accepts_new_patients"`
}

type Operatory struct {
	ID          string `json:"id"`
	PracticeID  string `json:"practice_id"`
	NexHealthID string `json:"nexhealth_id"`
	Name        string `json:"name"`
}
