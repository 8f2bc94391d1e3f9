package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the websocket and REST routes on mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, processStart time.Time) {
	mux.HandleFunc("/ws", hub.HandleWS)

	// REST: tokens with at least one snapshot
	mux.HandleFunc("/api/tokens", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, hub.Tokens())
	})

	// REST: newest snapshot of a token
	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		data, ok := hub.Latest(r.URL.Query().Get("token"))
		if !ok {
			http.Error(w, "unknown token", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	// REST: gap backfill, envelopes with seq in [from, to]
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		token := q.Get("token")
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if token == "" || err1 != nil || err2 != nil || from > to {
			http.Error(w, "token, from and to are required", http.StatusBadRequest)
			return
		}
		entries := hub.Replay(token, from, to)
		out := make([]json.RawMessage, len(entries))
		for i, e := range entries {
			out[i] = e
		}
		writeJSON(w, map[string]interface{}{
			"token":   token,
			"current": hub.Seq(token),
			"items":   out,
		})
	})

	// REST: broadcast lag percentiles in seconds
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		p50, p95, p99 := hub.Lag.Percentiles()
		writeJSON(w, map[string]interface{}{
			"ws_clients": hub.ClientCount(),
			"lag_p50":    p50,
			"lag_p95":    p95,
			"lag_p99":    p99,
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
