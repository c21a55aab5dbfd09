package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	goredis "github.com/go-redis/redis/v8"

	"volsignal/internal/alert"
)

// DefaultStateKey is the hash holding open alert episodes, one field per instrument.
const DefaultStateKey = "vol:episodes"

// StateStore persists the deduplicator's open episodes so a restart does not
// re-notify episodes that already notified.
type StateStore struct {
	client  *goredis.Client
	key     string
	breaker *CircuitBreaker
}

// NewStateStore creates a StateStore on key (DefaultStateKey if empty).
// breaker may be nil.
func NewStateStore(client *goredis.Client, key string, breaker *CircuitBreaker) *StateStore {
	if key == "" {
		key = DefaultStateKey
	}
	return &StateStore{client: client, key: key, breaker: breaker}
}

func (s *StateStore) exec(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}

// Save replaces the stored episodes atomically.
func (s *StateStore) Save(ctx context.Context, episodes []alert.Episode) error {
	fields, err := encodeEpisodes(episodes)
	if err != nil {
		return err
	}
	return s.exec(ctx, func(ctx context.Context) error {
		_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, s.key)
			if len(fields) > 0 {
				pipe.HSet(ctx, s.key, fields)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis save episodes: %w", err)
		}
		return nil
	})
}

// Load returns the stored episodes sorted by instrument id. A missing key
// yields an empty slice.
func (s *StateStore) Load(ctx context.Context) ([]alert.Episode, error) {
	var raw map[string]string
	err := s.exec(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.client.HGetAll(ctx, s.key).Result()
		if err != nil {
			return fmt.Errorf("redis load episodes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeEpisodes(raw)
}

func encodeEpisodes(episodes []alert.Episode) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(episodes))
	for _, ep := range episodes {
		b, err := json.Marshal(ep)
		if err != nil {
			return nil, fmt.Errorf("encode episode %s: %w", ep.InstrumentID, err)
		}
		fields[ep.InstrumentID] = string(b)
	}
	return fields, nil
}

func decodeEpisodes(raw map[string]string) ([]alert.Episode, error) {
	out := make([]alert.Episode, 0, len(raw))
	for id, v := range raw {
		var ep alert.Episode
		if err := json.Unmarshal([]byte(v), &ep); err != nil {
			return nil, fmt.Errorf("decode episode %s: %w", id, err)
		}
		if ep.InstrumentID == "" {
			ep.InstrumentID = id
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out, nil
}
