package service

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"volsignal/internal/alert"
	"volsignal/internal/model"
	sqlitestore "volsignal/internal/store/sqlite"
)

// Handler returns the HTTP surface:
//
//	GET  /healthz    health summary (503 when every instrument failed)
//	GET  /metrics    Prometheus exposition
//	GET  /ws         live cycle and alert stream
//	GET  /snapshots  latest cycle report
//	GET  /alerts     alert history (?limit=, ?instrument=)
//	GET  /episodes   open alert episodes
//	GET  /market     market session status
//	POST /reload     re-read the instrument file
//	POST /cycle      run a cycle now
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", svc.health)
	mux.Handle("/metrics", svc.prom.Handler())
	mux.Handle("/ws", svc.hub)
	mux.HandleFunc("/snapshots", svc.handleSnapshots)
	mux.HandleFunc("/alerts", svc.handleAlerts)
	mux.HandleFunc("/episodes", svc.handleEpisodes)
	mux.HandleFunc("/market", svc.handleMarket)
	mux.HandleFunc("/reload", svc.handleReload)
	mux.HandleFunc("/cycle", svc.handleCycle)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// handleSnapshots serves the in-memory report, falling back to Redis and
// then the journal after a restart.
func (svc *Service) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if last := svc.Latest(); last != nil {
		writeJSON(w, http.StatusOK, last)
		return
	}
	if svc.publisher != nil {
		if rep, err := svc.publisher.Latest(r.Context()); err == nil && rep != nil {
			writeJSON(w, http.StatusOK, rep)
			return
		}
	}
	if svc.journal != nil {
		id, snaps, err := svc.journal.LatestSnapshots(r.Context())
		if err != nil {
			svc.log.Warn("journal latest", slog.String("error", err.Error()))
		} else if id != "" {
			writeJSON(w, http.StatusOK, map[string]any{"cycle_id": id, "snapshots": snaps})
			return
		}
	}
	writeError(w, http.StatusNotFound, "no cycle has completed yet")
}

func (svc *Service) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if svc.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "alert journal disabled")
		return
	}
	f := sqlitestore.AlertFilter{InstrumentID: r.URL.Query().Get("instrument")}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		f.Limit = n
	}
	alerts, err := svc.journal.RecentAlerts(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alerts == nil {
		alerts = []model.AlertEvent{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (svc *Service) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	eps := svc.engine.Dedup().Episodes()
	if eps == nil {
		eps = []alert.Episode{}
	}
	writeJSON(w, http.StatusOK, eps)
}

func (svc *Service) handleMarket(w http.ResponseWriter, r *http.Request) {
	now := svc.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"open":    svc.session.IsOpen(now),
		"status":  svc.session.StatusString(now),
		"session": svc.session.Describe(),
	})
}

// handleReload handles POST /reload for live instrument updates.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	instruments, err := svc.Reload()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"instruments": instruments,
	})
}

func (svc *Service) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	res := svc.RunCycle(r.Context())
	code := http.StatusOK
	if res.AllFailed() {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, svc.Latest())
}
