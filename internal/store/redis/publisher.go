package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"volsignal/internal/model"
)

const (
	// SnapshotChannel carries one JSON model.CycleReport per cycle.
	SnapshotChannel = "pub:vol:snapshots"
	// LatestKey holds the most recent report for late subscribers.
	LatestKey = "vol:latest"

	defaultLatestTTL = 30 * time.Minute
)

// Publisher fans cycle reports out over Redis pub/sub.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	ttl     time.Duration
}

// NewPublisher creates a Publisher. breaker may be nil.
func NewPublisher(client *goredis.Client, breaker *CircuitBreaker) *Publisher {
	return &Publisher{client: client, breaker: breaker, ttl: defaultLatestTTL}
}

// PublishCycle stores the report under LatestKey and publishes it on
// SnapshotChannel in one round trip.
func (p *Publisher) PublishCycle(ctx context.Context, report model.CycleReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal cycle report: %w", err)
	}
	fn := func(ctx context.Context) error {
		_, err := p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, LatestKey, payload, p.ttl)
			pipe.Publish(ctx, SnapshotChannel, payload)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis publish cycle: %w", err)
		}
		return nil
	}
	if p.breaker == nil {
		return fn(ctx)
	}
	return p.breaker.Execute(ctx, fn)
}

// Latest returns the most recently published report, or nil if none is stored.
func (p *Publisher) Latest(ctx context.Context) (*model.CycleReport, error) {
	b, err := p.client.Get(ctx, LatestKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get latest: %w", err)
	}
	var r model.CycleReport
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode latest: %w", err)
	}
	return &r, nil
}
