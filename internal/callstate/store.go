package callstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	callStateKeyPrefix = "call:state:"
	replayKeyPrefix    = "call:replay:"
	defaultStateTTL    = 24 * time.Hour
)

// ErrStaleState is returned by Save when the stored state advanced past the
// turn the caller loaded. The dispatcher treats this as a lost race with a
// platform retry and serves the replay cache instead.
var ErrStaleState = errors.New("callstate: state advanced by a concurrent turn")

// Store persists conversation state and replayable tool responses in Redis.
// Persistence is last-write-wins per call under normal operation; Save adds
// an optimistic turn check so a retried turn racing the original loses
// cleanly instead of clobbering newer state.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a call-state store backed by Redis.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, ttl: defaultStateTTL}
}

// NewStoreWithTTL overrides the retention window for state and replay keys.
func NewStoreWithTTL(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func stateKey(callID string) string {
	return callStateKeyPrefix + callID
}

func replayKey(toolCallID string) string {
	return replayKeyPrefix + toolCallID
}

// Load retrieves the state for a call, or nil if the call is unseen.
func (s *Store) Load(ctx context.Context, callID string) (*CallState, error) {
	data, err := s.rdb.Get(ctx, stateKey(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("callstate: load %s: %w", callID, err)
	}
	var state CallState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("callstate: unmarshal %s: %w", callID, err)
	}
	return &state, nil
}

// Save persists the state, incrementing its turn counter. The write is
// rejected with ErrStaleState if the stored turn no longer matches the turn
// the caller loaded (another writer got there first). On success the passed
// state's Turn reflects the persisted value.
func (s *Store) Save(ctx context.Context, state *CallState) error {
	if state == nil || state.CallID == "" {
		return errors.New("callstate: call_id required")
	}
	key := stateKey(state.CallID)
	loadedTurn := state.Turn

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("callstate: read before save: %w", err)
		}
		if err == nil {
			var current CallState
			if jsonErr := json.Unmarshal(stored, &current); jsonErr == nil && current.Turn != loadedTurn {
				return ErrStaleState
			}
		}

		state.Turn = loadedTurn + 1
		state.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("callstate: marshal: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// The key changed between watch and exec; same outcome as a turn
		// mismatch from this writer's point of view.
		state.Turn = loadedTurn
		return ErrStaleState
	}
	if errors.Is(err, ErrStaleState) {
		state.Turn = loadedTurn
	}
	return err
}

// StoreReplay caches the response envelope for a completed tool call so a
// duplicate delivery of the same toolCallID returns the identical result
// without re-running a handler with side effects.
func (s *Store) StoreReplay(ctx context.Context, toolCallID string, envelope []byte) error {
	if toolCallID == "" {
		return errors.New("callstate: tool_call_id required")
	}
	if err := s.rdb.Set(ctx, replayKey(toolCallID), envelope, s.ttl).Err(); err != nil {
		return fmt.Errorf("callstate: store replay %s: %w", toolCallID, err)
	}
	return nil
}

// LookupReplay returns the cached envelope for a tool call, if any.
func (s *Store) LookupReplay(ctx context.Context, toolCallID string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, replayKey(toolCallID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("callstate: lookup replay %s: %w", toolCallID, err)
	}
	return data, true, nil
}
