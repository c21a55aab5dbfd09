package gateway

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// ServeHTTP upgrades to WebSocket. The optional "since" query parameter is the
// last seq the client saw; older alerts are not replayed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade error", slog.String("error", err.Error()))
		return
	}
	h.HandleWSRequest(conn, since)
}
