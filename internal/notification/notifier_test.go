package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volsignal/internal/model"
	"volsignal/internal/scale"
)

func sampleEvent() model.AlertEvent {
	return model.AlertEvent{
		ID:           "a1",
		InstrumentID: "BTC/USD",
		DisplayName:  "BTC/USD",
		MetricName:   model.MetricATRPercent,
		Value:        1.6,
		Threshold:    1.0,
		Timestamp:    time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		EpisodeSince: time.Date(2026, 3, 2, 11, 50, 0, 0, time.UTC),
		Price:        67250.5,
		ATR:          1076.008,
		ATRPercent:   1.6,
		Trend:        model.TrendBullish,
	}
}

func TestFromEvent(t *testing.T) {
	a := FromEvent(sampleEvent(), scale.Ten)

	assert.Equal(t, AlertCritical, a.Level)
	assert.Equal(t, "High Volatility Alert: BTC/USD", a.Title)
	assert.Contains(t, a.Message, "Price: $67250.50")
	assert.Contains(t, a.Message, "ATR: 1076.0080")
	assert.Contains(t, a.Message, "ATR%: 1.60%")
	assert.Contains(t, a.Message, "Volatility: 10/10")
	assert.Contains(t, a.Message, "Trend: Bullish")
	require.NotNil(t, a.Event)
	assert.Equal(t, "a1", a.Event.ID)
}

func TestFromEvent_RepeatAndForex(t *testing.T) {
	ev := sampleEvent()
	ev.DisplayName = "EUR/USD"
	ev.Price = 1.08412
	ev.Value, ev.ATRPercent = 1.1, 1.1
	ev.Repeat = true

	a := FromEvent(ev, scale.Five)
	assert.Equal(t, AlertWarning, a.Level)
	assert.True(t, strings.HasPrefix(a.Title, "Volatility Still High"))
	assert.Contains(t, a.Message, "Price: 1.08412")
	assert.Contains(t, a.Message, "Volatility: 3/5")
	assert.Contains(t, a.Message, "In alert since 11:50 UTC")
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, n.Send(context.Background(), FromEvent(sampleEvent(), scale.Ten)))
	assert.Contains(t, buf.String(), `"instrument":"BTC/USD"`)
	assert.Contains(t, buf.String(), `"component":"notify"`)
}

type stubNotifier struct {
	mu    sync.Mutex
	sent  []Alert
	fails error
}

func (s *stubNotifier) Send(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, a)
	return s.fails
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &stubNotifier{}
	bad := &stubNotifier{fails: errors.New("boom")}
	var failed []string

	m := NewMulti(Channel{"bad", bad}, Channel{"nil", nil}, Channel{"ok", ok})
	m.OnError = func(ch string, _ error) { failed = append(failed, ch) }
	assert.Equal(t, 2, m.Len())

	err := m.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, ok.sent, 1, "a failing channel must not block the others")
	assert.Equal(t, []string{"bad"}, failed)

	assert.NoError(t, NewMulti(Channel{"ok", ok}).Send(context.Background(), Alert{}))
}

func TestWebhookNotifier(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	require.NoError(t, n.Send(context.Background(), FromEvent(sampleEvent(), scale.Ten)))
	assert.Equal(t, "CRITICAL", got.Level)
	require.NotNil(t, got.Event)
	assert.Equal(t, "BTC/USD", got.Event.InstrumentID)
	assert.NotEmpty(t, got.TS)
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

// fakeTelegram serves the two Bot API methods the notifier uses.
func fakeTelegram(t *testing.T, messages chan<- url.Values) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"vol","username":"volbot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			messages <- r.PostForm
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
}

func TestTelegramNotifier(t *testing.T) {
	messages := make(chan url.Values, 1)
	srv := fakeTelegram(t, messages)
	defer srv.Close()

	n, err := NewTelegramNotifierWithEndpoint("TOKEN", 42, srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), FromEvent(sampleEvent(), scale.Ten)))

	form := <-messages
	assert.Equal(t, "42", form.Get("chat_id"))
	assert.Equal(t, "MarkdownV2", form.Get("parse_mode"))
	text := form.Get("text")
	assert.Contains(t, text, "🚨")
	assert.Contains(t, text, `BTC/USD`)
	assert.Contains(t, text, `1076\.0080`, "MarkdownV2 specials are escaped")
}

func TestTelegramNotifier_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	_, err := NewTelegramNotifierWithEndpoint("BAD", 1, srv.URL+"/bot%s/%s", srv.Client())
	assert.Error(t, err)
}
