package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus tracks per-token ingestion and the optional sinks. Redis and
// SQLite only count toward the status once enabled; a token counts as stale
// when it has not ingested within StaleAfter.
type HealthStatus struct {
	mu sync.RWMutex

	StaleAfter time.Duration // 0 disables staleness

	tokens    map[string]time.Time // token -> last ingested tick
	started   time.Time
	lastCheck time.Time

	redis  dependency
	sqlite dependency

	now func() time.Time
}

type dependency struct {
	enabled bool
	ok      bool
	latency time.Duration
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		tokens:  make(map[string]time.Time),
		started: time.Now(),
		now:     time.Now,
	}
}

// Watch registers tokens that have not ticked yet.
func (h *HealthStatus) Watch(tokens ...string) {
	h.mu.Lock()
	for _, t := range tokens {
		if _, ok := h.tokens[t]; !ok {
			h.tokens[t] = time.Time{}
		}
	}
	h.mu.Unlock()
}

// RecordTick notes a successful ingestion for token.
func (h *HealthStatus) RecordTick(token string, at time.Time) {
	h.mu.Lock()
	h.tokens[token] = at
	h.mu.Unlock()
}

// EnableRedis marks Redis as a required dependency.
func (h *HealthStatus) EnableRedis(connected bool) {
	h.mu.Lock()
	h.redis.enabled, h.redis.ok = true, connected
	h.mu.Unlock()
}

// EnableSQLite marks SQLite as a required dependency.
func (h *HealthStatus) EnableSQLite(ok bool) {
	h.mu.Lock()
	h.sqlite.enabled, h.sqlite.ok = true, ok
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	h.record(&h.redis, err, time.Since(start))
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	h.record(&h.sqlite, err, time.Since(start))
}

func (h *HealthStatus) record(d *dependency, err error, latency time.Duration) {
	h.mu.Lock()
	d.ok = err == nil
	d.latency = latency
	h.lastCheck = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may
// be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// TokenHealth is one row of the /healthz token table.
type TokenHealth struct {
	Token    string `json:"token"`
	LastTick string `json:"last_tick,omitempty"`
	Age      string `json:"age,omitempty"`
	Stale    bool   `json:"stale"`
}

// Report is the /healthz body.
type Report struct {
	Status          string        `json:"status"`
	Uptime          string        `json:"uptime"`
	Tokens          []TokenHealth `json:"tokens"`
	RedisEnabled    bool          `json:"redis_enabled"`
	RedisConnected  bool          `json:"redis_connected"`
	RedisLatencyMs  float64       `json:"redis_latency_ms"`
	SQLiteEnabled   bool          `json:"sqlite_enabled"`
	SQLiteOK        bool          `json:"sqlite_ok"`
	SQLiteLatencyMs float64       `json:"sqlite_latency_ms"`
	LastCheckAt     string        `json:"last_check_at,omitempty"`
}

// Report derives "healthy", "degraded" or "unhealthy" with its HTTP code.
// Both sinks down, or every token stale, is unhealthy; any single failure
// is degraded.
func (h *HealthStatus) Report() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	now := h.now()

	r := Report{
		Uptime:          now.Sub(h.started).Round(time.Second).String(),
		Tokens:          make([]TokenHealth, 0, len(h.tokens)),
		RedisEnabled:    h.redis.enabled,
		RedisConnected:  h.redis.ok,
		RedisLatencyMs:  float64(h.redis.latency.Microseconds()) / 1000.0,
		SQLiteEnabled:   h.sqlite.enabled,
		SQLiteOK:        h.sqlite.ok,
		SQLiteLatencyMs: float64(h.sqlite.latency.Microseconds()) / 1000.0,
	}
	if !h.lastCheck.IsZero() {
		r.LastCheckAt = h.lastCheck.Format(time.RFC3339)
	}

	stale := 0
	for token, at := range h.tokens {
		th := TokenHealth{Token: token}
		if !at.IsZero() {
			th.LastTick = at.UTC().Format(time.RFC3339)
			th.Age = now.Sub(at).Round(time.Second).String()
		}
		// A token that never ticked is stale once the process is older than StaleAfter.
		ref := at
		if ref.IsZero() {
			ref = h.started
		}
		if h.StaleAfter > 0 && now.Sub(ref) > h.StaleAfter {
			th.Stale = true
			stale++
		}
		r.Tokens = append(r.Tokens, th)
	}
	sort.Slice(r.Tokens, func(i, j int) bool { return r.Tokens[i].Token < r.Tokens[j].Token })

	redisDown := h.redis.enabled && !h.redis.ok
	sqliteDown := h.sqlite.enabled && !h.sqlite.ok
	allStale := len(h.tokens) > 0 && stale == len(h.tokens)
	switch {
	case (redisDown && sqliteDown) || allStale:
		r.Status = "unhealthy"
		return r, http.StatusServiceUnavailable
	case redisDown || sqliteDown || stale > 0:
		r.Status = "degraded"
		return r, http.StatusServiceUnavailable
	}
	r.Status = "healthy"
	return r, http.StatusOK
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}

// Server runs an HTTP server exposing /metrics and /healthz, plus any extra
// routes registered on Mux before Start.
type Server struct {
	Mux *http.ServeMux

	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		Mux:  mux,
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
