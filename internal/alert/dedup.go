// Package alert tracks alert episodes per instrument and decides when an
// episode should notify.
//
// Each instrument is either Normal or InAlert(since, lastNotifiedAt). The
// first breach notifies immediately; while the episode stays open a repeat
// notification is allowed once the cooldown has elapsed since the last one.
// Dropping back to Normal clears the episode, so the next breach notifies
// again regardless of the previous episode's cooldown.
//
// Only deliverable observations count as notified. An episode that opens
// while delivery is held back yields a held event and keeps a zero
// lastNotifiedAt; its first deliverable observation notifies as a fresh alert.
package alert

import (
	"sort"
	"sync"
	"time"
)

// DefaultCooldown is the minimum spacing between notifications of one episode.
const DefaultCooldown = 5 * time.Minute

// Outcome is what one observation decided.
type Outcome struct {
	Notify bool      // emit an alert event now
	Repeat bool      // the event re-notifies an already-open episode
	Held   bool      // the event is recorded but must not be delivered
	Since  time.Time // episode start; zero when Normal
}

// Episode is an open alert episode. It is the unit exported to and restored
// from external persistence.
type Episode struct {
	InstrumentID   string    `json:"instrument_id"`
	Since          time.Time `json:"since"`
	LastNotifiedAt time.Time `json:"last_notified_at"` // zero until first delivered
}

// Delivered reports whether any notification of the episode went out.
func (e Episode) Delivered() bool { return !e.LastNotifiedAt.IsZero() }

type slot struct {
	mu   sync.Mutex
	open bool
	ep   Episode
}

// Deduplicator owns the open-episode map. Updates for one instrument are
// serialized by that instrument's slot; different instruments never contend
// beyond the map lookup.
type Deduplicator struct {
	cooldown time.Duration

	mu    sync.RWMutex
	slots map[string]*slot
}

// NewDeduplicator creates a Deduplicator. A non-positive cooldown selects
// DefaultCooldown.
func NewDeduplicator(cooldown time.Duration) *Deduplicator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Deduplicator{
		cooldown: cooldown,
		slots:    make(map[string]*slot),
	}
}

// Cooldown returns the configured repeat interval.
func (d *Deduplicator) Cooldown() time.Duration { return d.cooldown }

func (d *Deduplicator) slot(id string) *slot {
	d.mu.RLock()
	s, ok := d.slots[id]
	d.mu.RUnlock()
	if ok {
		return s
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok = d.slots[id]; !ok {
		s = &slot{}
		d.slots[id] = s
	}
	return s
}

// Observe feeds the current evaluation for id and applies the transition.
// deliver reports whether a notification emitted now would actually be sent.
func (d *Deduplicator) Observe(id string, inAlert, deliver bool, now time.Time) Outcome {
	s := d.slot(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !inAlert:
		s.open = false
		s.ep = Episode{}
		return Outcome{}

	case !s.open:
		s.open = true
		s.ep = Episode{InstrumentID: id, Since: now}
		if !deliver {
			return Outcome{Notify: true, Held: true, Since: now}
		}
		s.ep.LastNotifiedAt = now
		return Outcome{Notify: true, Since: now}

	case !deliver:
		return Outcome{Since: s.ep.Since}

	case !s.ep.Delivered():
		s.ep.LastNotifiedAt = now
		return Outcome{Notify: true, Since: s.ep.Since}

	case now.Sub(s.ep.LastNotifiedAt) >= d.cooldown:
		s.ep.LastNotifiedAt = now
		return Outcome{Notify: true, Repeat: true, Since: s.ep.Since}
	}
	return Outcome{Since: s.ep.Since}
}

// InEpisode reports whether id currently has an open episode.
func (d *Deduplicator) InEpisode(id string) bool {
	d.mu.RLock()
	s, ok := d.slots[id]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Episodes exports all open episodes sorted by instrument id.
func (d *Deduplicator) Episodes() []Episode {
	d.mu.RLock()
	slots := make([]*slot, 0, len(d.slots))
	for _, s := range d.slots {
		slots = append(slots, s)
	}
	d.mu.RUnlock()

	out := make([]Episode, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		if s.open {
			out = append(out, s.ep)
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// OpenCount returns the number of open episodes.
func (d *Deduplicator) OpenCount() int {
	return len(d.Episodes())
}

// Restore replaces all state with the given episodes. Entries without an
// instrument id are skipped; a zero LastNotifiedAt stays undelivered.
func (d *Deduplicator) Restore(episodes []Episode) {
	slots := make(map[string]*slot, len(episodes))
	for _, ep := range episodes {
		if ep.InstrumentID == "" {
			continue
		}
		slots[ep.InstrumentID] = &slot{open: true, ep: ep}
	}

	d.mu.Lock()
	d.slots = slots
	d.mu.Unlock()
}

// Forget drops any state for id.
func (d *Deduplicator) Forget(id string) {
	d.mu.Lock()
	delete(d.slots, id)
	d.mu.Unlock()
}

// Prune forgets every instrument not in keep.
func (d *Deduplicator) Prune(keep map[string]struct{}) {
	d.mu.RLock()
	var drop []string
	for id := range d.slots {
		if _, ok := keep[id]; !ok {
			drop = append(drop, id)
		}
	}
	d.mu.RUnlock()

	for _, id := range drop {
		d.Forget(id)
	}
}
