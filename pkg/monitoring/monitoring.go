package monitoring

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	pp "net/http/pprof"

	"review-insights/pkg/metrics"
)

// Latency keeps the most recent request durations for the admin runtime
// view. Prometheus holds the long-term series.
type Latency struct {
	mu        sync.Mutex
	durations []float64 // milliseconds, circular buffer of last N
	idx       int
	count     int64
	n         int
}

func NewLatency(capacity int) *Latency {
	if capacity <= 0 {
		capacity = 256
	}
	return &Latency{durations: make([]float64, capacity), n: capacity}
}

// Observe adds a duration sample in milliseconds.
func (m *Latency) Observe(ms float64) {
	m.mu.Lock()
	m.durations[m.idx] = ms
	m.idx = (m.idx + 1) % m.n
	m.count++
	m.mu.Unlock()
}

// Snapshot returns the total count with the mean and quantiles of the
// retained samples.
func (m *Latency) Snapshot() (count int64, avg, p50, p95 float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var samples []float64
	if m.count < int64(m.n) {
		samples = append(samples, m.durations[:m.idx]...)
	} else {
		samples = append(samples, m.durations...)
	}
	if len(samples) == 0 {
		return m.count, 0, 0, 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	avg = sum / float64(len(samples))
	sort.Float64s(samples)
	p50 = samples[(len(samples)*50)/100]
	p95 = samples[(len(samples)*95)/100]
	return m.count, avg, p50, p95
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (sw *statusWriter) WriteHeader(statusCode int) {
	sw.statusCode = statusCode
	sw.ResponseWriter.WriteHeader(statusCode)
}

// Middleware records each request in the Prometheus HTTP series, labelled by
// the mux route name, and in lat when it is not nil.
func Middleware(lat *Latency) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)
			dur := time.Since(start)
			if lat != nil {
				lat.Observe(float64(dur.Microseconds()) / 1000.0)
			}
			metrics.ObserveHTTP(routeName(r), r.Method, sw.statusCode, dur)
		})
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RuntimeHandler exposes runtime stats and recent request latency as JSON.
func RuntimeHandler(lat *Latency) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		count, avg, p50, p95 := lat.Snapshot()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"time":             time.Now().Format(time.RFC3339),
			"requests_total":   count,
			"duration_ms_avg":  avg,
			"duration_ms_p50":  p50,
			"duration_ms_p95":  p95,
			"goroutines":       runtime.NumGoroutine(),
			"mem_alloc_bytes":  ms.Alloc,
			"heap_inuse_bytes": ms.HeapInuse,
			"gc_num":           ms.NumGC,
		})
	})
}

// RegisterPprof mounts the pprof handlers under /debug/pprof/.
func RegisterPprof(r *mux.Router) {
	r.HandleFunc("/debug/pprof/cmdline", pp.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pp.Profile)
	r.HandleFunc("/debug/pprof/symbol", pp.Symbol)
	r.HandleFunc("/debug/pprof/trace", pp.Trace)
	r.PathPrefix("/debug/pprof/").HandlerFunc(pp.Index)
}

// EnableProfiling toggles block and mutex profiling.
func EnableProfiling(enabled bool) {
	if enabled {
		runtime.SetBlockProfileRate(1)
		runtime.SetMutexProfileFraction(5)
		return
	}
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
}
