package practice

import (
	"context"
	"fmt"

	"github.com/haloweavedev/laine/internal/nexhealth"
	"github.com/haloweavedev/laine/pkg/logging"
)

// Syncer refreshes a practice's appointment types from NexHealth.
// Names and durations come from the remote system; spoken names and
// keywords are practice configuration and survive the sync.
type Syncer struct {
	api    nexhealth.API
	store  *Store
	logger *logging.Logger
}

func NewSyncer(api nexhealth.API, store *Store, logger *logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Syncer{api: api, store: store, logger: logger}
}

// SyncAppointmentTypes pulls the current appointment types for one
// practice and upserts them. Returns the number of types written.
func (s *Syncer) SyncAppointmentTypes(ctx context.Context, practiceID string) (int, error) {
	remote, err := s.api.ListAppointmentTypes(ctx, practiceID)
	if err != nil {
		return 0, fmt.Errorf("practice: list appointment types: %w", err)
	}

	synced := 0
	for _, rt := range remote {
		t := AppointmentType{
			PracticeID:      practiceID,
			NexHealthID:     rt.ID,
			Name:            rt.Name,
			DurationMinutes: rt.DurationMinutes,
			Bookable:        rt.Bookable,
		}
		if err := s.store.UpsertAppointmentType(ctx, &t); err != nil {
			return synced, fmt.Errorf("practice: upsert appointment type %s: %w", rt.ID, err)
		}
		synced++
	}

	s.logger.Info("appointment types synced",
		"practice_id", practiceID,
		"count", synced,
	)
	return synced, nil
}
