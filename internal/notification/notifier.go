// Package notification delivers alert events to external channels
// (Telegram, webhooks, the log).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"volsignal/internal/model"
	"volsignal/internal/scale"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// criticalRatio is the value/threshold ratio from which an alert is CRITICAL.
const criticalRatio = 1.5

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel        `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Event   *model.AlertEvent `json:"event,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// FromEvent formats an alert event into a human-readable notification.
// sc maps value/threshold onto the display scale.
func FromEvent(ev model.AlertEvent, sc scale.Scale) Alert {
	level := AlertWarning
	if ev.Threshold > 0 && ev.Value >= ev.Threshold*criticalRatio {
		level = AlertCritical
	}

	title := "High Volatility Alert: " + ev.DisplayName
	if ev.Repeat {
		title = "Volatility Still High: " + ev.DisplayName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s 🚨\n", ev.DisplayName)
	fmt.Fprintf(&b, "Price: %s\n", formatPrice(ev.Price))
	fmt.Fprintf(&b, "ATR: %.4f\n", ev.ATR)
	fmt.Fprintf(&b, "ATR%%: %.2f%%\n", ev.ATRPercent)
	lvl := sc.Level(ev.Value, ev.Threshold)
	fmt.Fprintf(&b, "Volatility: %d/%d %s\n", lvl, sc.Max, sc.Bar(lvl))
	if ev.MetricName != model.MetricATRPercent {
		fmt.Fprintf(&b, "%s: %.4f (threshold %.4f)\n", strings.ToUpper(string(ev.MetricName)), ev.Value, ev.Threshold)
	} else {
		fmt.Fprintf(&b, "Threshold: %.2f%%\n", ev.Threshold)
	}
	if ev.Trend != "" {
		fmt.Fprintf(&b, "Trend: %s\n", ev.Trend)
	}
	if ev.Repeat {
		fmt.Fprintf(&b, "In alert since %s", ev.EpisodeSince.UTC().Format("15:04 MST"))
	}

	e := ev
	return Alert{
		Level:   level,
		Title:   title,
		Message: strings.TrimRight(b.String(), "\n"),
		Event:   &e,
	}
}

func formatPrice(p float64) string {
	if p >= 100 {
		return fmt.Sprintf("$%.2f", p)
	}
	return fmt.Sprintf("%.5f", p)
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{log: l.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	attrs := []any{
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
	}
	if alert.Event != nil {
		attrs = append(attrs,
			slog.String("instrument", alert.Event.InstrumentID),
			slog.Float64("value", alert.Event.Value),
			slog.Float64("threshold", alert.Event.Threshold),
			slog.Bool("repeat", alert.Event.Repeat))
	}
	n.log.InfoContext(ctx, "alert", attrs...)
	return nil
}

// Channel is a named Notifier.
type Channel struct {
	Name     string
	Notifier Notifier
}

// Multi fans an alert out to every channel. A failing channel does not stop
// delivery to the others; all failures are joined into the returned error.
type Multi struct {
	channels []Channel

	// OnError, if set, is called once per failed channel.
	OnError func(channel string, err error)
}

// NewMulti builds a Multi from the given channels, skipping nil notifiers.
func NewMulti(channels ...Channel) *Multi {
	m := &Multi{}
	for _, c := range channels {
		if c.Notifier != nil {
			m.channels = append(m.channels, c)
		}
	}
	return m
}

// Len returns the number of channels.
func (m *Multi) Len() int { return len(m.channels) }

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, c := range m.channels {
		if err := c.Notifier.Send(ctx, alert); err != nil {
			if m.OnError != nil {
				m.OnError(c.Name, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}
