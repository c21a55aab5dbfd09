package gateway

import (
	"strconv"
	"time"
)

const (
	kindCycle = "cycle"
	kindAlert = "alert"
)

// broadcast wraps data in an envelope and fans it out. Slow clients whose send
// buffer is full miss the message instead of stalling the hub.
func (h *Hub) broadcast(kind string, data []byte, replay bool) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	env := buildEnvelope(kind, data, h.now().UTC(), seq)
	if kind == kindCycle {
		h.latest = env
	}
	h.mu.Unlock()

	if replay {
		h.alerts.Push(seq, env)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- env:
		default:
		}
	}
}

// buildEnvelope hand-crafts {"type":...,"data":...,"ts":...,"seq":N}.
// data must already be valid JSON.
func buildEnvelope(kind string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(kind)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
