package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"review-insights/pkg/logging"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    string         `json:"duration"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type SystemHealth struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

type Checker interface {
	Name() string
	Check(ctx context.Context) ComponentHealth
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) ComponentHealth
}

func NewCheckFunc(name string, fn func(ctx context.Context) ComponentHealth) CheckFunc {
	return CheckFunc{name: name, fn: fn}
}

func (c CheckFunc) Name() string { return c.name }

func (c CheckFunc) Check(ctx context.Context) ComponentHealth {
	res := c.fn(ctx)
	res.Name = c.name
	return res
}

// Manager runs the registered checks concurrently, each bounded by the
// configured timeout.
type Manager struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	startTime time.Time
	version   string
	timeout   time.Duration
	log       *logging.ComponentLogger
}

func NewManager(version string, timeout time.Duration, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		checkers:  make(map[string]Checker),
		startTime: time.Now(),
		version:   version,
		timeout:   timeout,
		log:       log.WithComponent("health"),
	}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	m.checkers[c.Name()] = c
	m.mu.Unlock()
	m.log.Debug("registered health checker", logging.String("checker", c.Name()))
}

func (m *Manager) CheckAll(ctx context.Context) SystemHealth {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(chan ComponentHealth, len(checkers))
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			start := time.Now()
			res := c.Check(cctx)
			res.Name = c.Name()
			res.LastChecked = start
			res.Duration = time.Since(start).String()
			results <- res
		}(c)
	}
	wg.Wait()
	close(results)

	components := make(map[string]ComponentHealth, len(checkers))
	for res := range results {
		components[res.Name] = res
	}
	status := overall(components)
	if status != StatusHealthy {
		m.log.Warn("health check not healthy", logging.String("status", string(status)))
	}
	return SystemHealth{
		Status:     status,
		Timestamp:  time.Now(),
		Version:    m.version,
		Uptime:     time.Since(m.startTime).Round(time.Second).String(),
		Components: components,
	}
}

// overall is unhealthy if any component is, degraded if any component is,
// and healthy only when every component reports healthy.
func overall(components map[string]ComponentHealth) Status {
	if len(components) == 0 {
		return StatusUnknown
	}
	healthy, degraded := 0, 0
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			degraded++
		case StatusHealthy:
			healthy++
		}
	}
	switch {
	case degraded > 0:
		return StatusDegraded
	case healthy == len(components):
		return StatusHealthy
	default:
		return StatusUnknown
	}
}

// Database pings the pool and runs a trivial query.
func Database(db *sql.DB) Checker {
	return NewCheckFunc("database", func(ctx context.Context) ComponentHealth {
		var res ComponentHealth
		if err := db.PingContext(ctx); err != nil {
			res.Status, res.Message, res.Error = StatusUnhealthy, "database connection failed", err.Error()
			return res
		}
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			res.Status, res.Message, res.Error = StatusDegraded, "database query failed", err.Error()
			return res
		}
		stats := db.Stats()
		res.Status, res.Message = StatusHealthy, "database connection successful"
		res.Metadata = map[string]any{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
		}
		return res
	})
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Redis reports degraded rather than unhealthy on failure: identity caching
// and run locks fall back to working without it.
func Redis(p Pinger) Checker {
	return NewCheckFunc("redis", func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDegraded, Message: "redis unreachable", Error: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy, Message: "redis responding"}
	})
}

// Configured reports whether an optional provider has its credentials.
// A missing provider degrades the service without failing readiness.
func Configured(name string, ok bool, detail string) Checker {
	return NewCheckFunc(name, func(context.Context) ComponentHealth {
		if !ok {
			return ComponentHealth{Status: StatusDegraded, Message: detail + " not configured"}
		}
		return ComponentHealth{Status: StatusHealthy, Message: detail + " configured"}
	})
}

// Mount adds /health, /health/live and /health/ready to r.
func (m *Manager) Mount(r *mux.Router) {
	r.HandleFunc("/health", m.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", m.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", m.handleReadiness).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := m.CheckAll(r.Context())
	status := http.StatusOK
	if h.Status == StatusUnhealthy || h.Status == StatusUnknown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (m *Manager) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": time.Since(m.startTime).Round(time.Second).String(),
	})
}

// handleReadiness is ready unless a component is unhealthy.
func (m *Manager) handleReadiness(w http.ResponseWriter, r *http.Request) {
	h := m.CheckAll(r.Context())
	ready := h.Status != StatusUnhealthy
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":     h.Status,
		"ready":      ready,
		"components": len(h.Components),
	})
}
