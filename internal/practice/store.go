package practice

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetPractice(ctx context.Context, id string) (*Practice, error) {
	var p Practice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, timezone, notify_email, active, created_at, updated_at
		FROM practices WHERE id = $1`, id).Scan(
		&p.ID, &p.Name, &p.Timezone, &p.NotifyEmail, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListAppointmentTypes returns the bookable appointment types for a practice.
func (s *Store) ListAppointmentTypes(ctx context.Context, practiceID string) ([]AppointmentType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, practice_id, nexhealth_id, name, spoken_name, duration_minutes,
		       keywords, urgent, bookable, updated_at
		FROM appointment_types
		WHERE practice_id = $1 AND bookable = TRUE
		ORDER BY name ASC`, practiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppointmentType
	for rows.Next() {
		var t AppointmentType
		if err := rows.Scan(&t.ID, &t.PracticeID, &t.NexHealthID, &t.Name, &t.SpokenName,
			&t.DurationMinutes, pq.Array(&t.Keywords), &t.Urgent, &t.Bookable, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if t.Keywords == nil {
			t.Keywords = []string{}
		}
		out = append(out, t)
	}
	if out == nil {
		out = []AppointmentType{}
	}
	return out, rows.Err()
}

func (s *Store) GetAppointmentType(ctx context.Context, practiceID, id string) (*AppointmentType, error) {
	var t AppointmentType
	err := s.db.QueryRowContext(ctx, `
		SELECT id, practice_id, nexhealth_id, name, spoken_name, duration_minutes,
		       keywords, urgent, bookable, updated_at
		FROM appointment_types WHERE practice_id = $1 AND id = $2`, practiceID, id).Scan(
		&t.ID, &t.PracticeID, &t.NexHealthID, &t.Name, &t.SpokenName,
		&t.DurationMinutes, pq.Array(&t.Keywords), &t.Urgent, &t.Bookable, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.Keywords == nil {
		t.Keywords = []string{}
	}
	return &t, nil
}

// UpsertAppointmentType keys on (practice_id, nexhealth_id) so repeated
// syncs update in place. Voice metadata is only written when provided,
// a sync with empty spoken fields never clobbers configured ones.
func (s *Store) UpsertAppointmentType(ctx context.Context, t *AppointmentType) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointment_types (id, practice_id, nexhealth_id, name, spoken_name,
		    duration_minutes, keywords, urgent, bookable, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (practice_id, nexhealth_id) DO UPDATE SET
		    name=EXCLUDED.name,
		    duration_minutes=EXCLUDED.duration_minutes,
		    spoken_name=CASE WHEN EXCLUDED.spoken_name <> '' THEN EXCLUDED.spoken_name ELSE appointment_types.spoken_name END,
		    keywords=CASE WHEN array_length(EXCLUDED.keywords, 1) > 0 THEN EXCLUDED.keywords ELSE appointment_types.keywords END,
		    urgent=EXCLUDED.urgent,
		    bookable=EXCLUDED.bookable,
		    updated_at=$10`,
		t.ID, t.PracticeID, t.NexHealthID, t.Name, t.SpokenName,
		t.DurationMinutes, pq.Array(t.Keywords), t.Urgent, t.Bookable, now)
	return err
}

func (s *Store) ListProviders(ctx context.Context, practiceID string) ([]Provider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, practice_id, nexhealth_id, name, accepts_new_patients
		FROM providers WHERE practice_id = $1 ORDER BY name ASC`, practiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.PracticeID, &p.NexHealthID, &p.Name, &p.AcceptsNewPatients); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if out == nil {
		out = []Provider{}
	}
	return out, rows.Err()
}

func (s *Store) ListOperatories(ctx context.Context, practiceID string) ([]Operatory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, practice_id, nexhealth_id, name
		FROM operatories WHERE practice_id = $1 ORDER BY name ASC`, practiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Operatory
	for rows.Next() {
		var o Operatory
		if err := rows.Scan(&o.ID, &o.PracticeID, &o.NexHealthID, &o.Name); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if out == nil {
		out = []Operatory{}
	}
	return out, rows.Err()
}
