package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"volsignal/internal/alert"
	"volsignal/internal/model"
)

var since = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestEpisodeCodec_RoundTrip(t *testing.T) {
	in := []alert.Episode{
		{InstrumentID: "XAU/USD", Since: since, LastNotifiedAt: since.Add(5 * time.Minute)},
		{InstrumentID: "BTC/USD", Since: since, LastNotifiedAt: since},
	}
	fields, err := encodeEpisodes(in)
	if err != nil {
		t.Fatal(err)
	}
	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}
	out, err := decodeEpisodes(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].InstrumentID != "BTC/USD" {
		t.Fatalf("expected sorted episodes, got %+v", out)
	}
	if !out[1].LastNotifiedAt.Equal(in[0].LastNotifiedAt) {
		t.Errorf("LastNotifiedAt lost: %v", out[1].LastNotifiedAt)
	}
}

func TestDecodeEpisodes_FillsIDAndRejectsGarbage(t *testing.T) {
	out, err := decodeEpisodes(map[string]string{"EUR/USD": `{"since":"2026-03-02T10:00:00Z"}`})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].InstrumentID != "EUR/USD" {
		t.Errorf("id not filled from field: %+v", out[0])
	}
	if _, err := decodeEpisodes(map[string]string{"X": "{"}); err == nil {
		t.Error("expected decode error")
	}
}

// liveClient returns a client for REDIS_TEST_ADDR or skips.
func liveClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	c, err := Connect(context.Background(), Config{Addr: addr, DB: 15})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStateStore_Live(t *testing.T) {
	c := liveClient(t)
	ctx := context.Background()
	key := "test:vol:episodes"
	defer c.Del(ctx, key)

	store := NewStateStore(c, key, NewCircuitBreaker(3, time.Second))
	eps := []alert.Episode{{InstrumentID: "BTC/USD", Since: since, LastNotifiedAt: since}}
	if err := store.Save(ctx, eps); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Since.Equal(since) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// saving an empty set clears the hash
	if err := store.Save(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Load(ctx); len(got) != 0 {
		t.Errorf("expected empty after clear, got %+v", got)
	}
}

func TestPublisher_Live(t *testing.T) {
	c := liveClient(t)
	ctx := context.Background()
	defer c.Del(ctx, LatestKey)

	sub := c.Subscribe(ctx, SnapshotChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	report := model.CycleReport{CycleID: "cycle-1", StartedAt: since,
		Snapshots: []model.IndicatorSnapshot{{InstrumentID: "BTC/USD", ATRPercent: 1.2}}}
	pub := NewPublisher(c, nil)
	if err := pub.PublishCycle(ctx, report); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != SnapshotChannel {
			t.Errorf("channel = %s", msg.Channel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	latest, err := pub.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.CycleID != "cycle-1" || latest.Snapshots[0].InstrumentID != "BTC/USD" {
		t.Errorf("latest = %+v", latest)
	}
}
