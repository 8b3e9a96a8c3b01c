package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"review-insights/pkg/logging"
	"review-insights/pkg/metrics"
)

// State of a breaker. Closed passes calls, Open fails fast, HalfOpen lets a
// limited number of probes through.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes a circuit breaker instance.
type Config struct {
	Name string

	OperationTimeout    time.Duration // per-call timeout
	OpenFor             time.Duration // how long to stay open before probing
	MaxConsecFailures   int           // consecutive failures to open
	WindowSize          int           // sliding window of recent calls
	FailureRate         float64       // 0..1 fraction in window to open
	MinSamples          int           // window samples needed before FailureRate applies
	SlowCallThreshold   time.Duration
	HalfOpenMaxInFlight int

	// IsFailure decides whether an error counts against the circuit. Caller
	// mistakes (bad input, missing rows) usually should not. Nil counts all.
	IsFailure func(error) bool
}

// ErrOpen indicates the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("circuit open")

var (
	cbState       = metrics.Default.CounterVec("circuit_transitions_total", "Circuit breaker state transitions.", "name", "state")
	cbCalls       = metrics.Default.CounterVec("circuit_calls_total", "Calls through a circuit breaker by result.", "name", "result")
	cbLatency     = metrics.Default.HistogramVec("circuit_call_duration_seconds", "Latency of calls through a circuit breaker.", nil, "name")
	cbShortCircut = metrics.Default.CounterVec("circuit_rejected_total", "Calls rejected while open.", "name")
)

type Breaker struct {
	cfg Config

	mu         sync.Mutex
	st         State
	nextProbe  time.Time
	consecFail int
	inFlight   int // half-open probes

	win  []bool // true = failure
	idx  int
	used int

	log *logging.Logger
	now func() time.Time
}

func New(cfg Config, log *logging.Logger) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.HalfOpenMaxInFlight <= 0 {
		cfg.HalfOpenMaxInFlight = 1
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = cfg.WindowSize / 2
	}
	return &Breaker{
		cfg: cfg,
		st:  Closed,
		win: make([]bool, cfg.WindowSize),
		log: log,
		now: time.Now,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func (b *Breaker) setStateLocked(st State) {
	if b.st == st {
		return
	}
	b.st = st
	switch st {
	case Open:
		b.nextProbe = b.now().Add(b.cfg.OpenFor)
	case Closed:
		b.consecFail = 0
		b.used, b.idx = 0, 0
	}
	cbState.WithLabelValues(b.cfg.Name, st.String()).Inc()
	if b.log != nil {
		b.log.WithComponent("circuit").Info("breaker state change",
			logging.String("name", b.cfg.Name), logging.String("state", st.String()))
	}
}

// recordLocked adds an outcome and opens the circuit when a threshold is crossed.
func (b *Breaker) recordLocked(failed bool) {
	b.win[b.idx] = failed
	b.idx = (b.idx + 1) % len(b.win)
	if b.used < len(b.win) {
		b.used++
	}
	if failed {
		b.consecFail++
	} else {
		b.consecFail = 0
	}

	switch b.st {
	case HalfOpen:
		if failed {
			b.setStateLocked(Open)
		} else {
			b.setStateLocked(Closed)
		}
	case Closed:
		if b.cfg.MaxConsecFailures > 0 && b.consecFail >= b.cfg.MaxConsecFailures {
			b.setStateLocked(Open)
			return
		}
		if b.cfg.FailureRate > 0 && b.used >= b.cfg.MinSamples {
			n := 0
			for i := 0; i < b.used; i++ {
				if b.win[i] {
					n++
				}
			}
			if float64(n)/float64(b.used) >= b.cfg.FailureRate {
				b.setStateLocked(Open)
			}
		}
	}
}

// Do runs op under the breaker. When the circuit is open the fallback runs with
// ErrOpen as cause, or ErrOpen is returned when there is no fallback.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error, fallback func(ctx context.Context, cause error) error) error {
	b.mu.Lock()
	if b.st == Open && b.now().After(b.nextProbe) {
		b.setStateLocked(HalfOpen)
	}
	reject := b.st == Open || (b.st == HalfOpen && b.inFlight >= b.cfg.HalfOpenMaxInFlight)
	if !reject && b.st == HalfOpen {
		b.inFlight++
	}
	probing := !reject && b.st == HalfOpen
	b.mu.Unlock()

	if reject {
		cbShortCircut.WithLabelValues(b.cfg.Name).Inc()
		if fallback != nil {
			return fallback(ctx, ErrOpen)
		}
		return ErrOpen
	}

	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	start := b.now()
	err := op(ctx)
	dur := b.now().Sub(start)
	cbLatency.WithLabelValues(b.cfg.Name).Observe(dur.Seconds())

	failed := err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err))
	result := "success"
	switch {
	case failed && errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case failed:
		result = "failure"
	case b.cfg.SlowCallThreshold > 0 && dur > b.cfg.SlowCallThreshold:
		result = "slow"
	}
	cbCalls.WithLabelValues(b.cfg.Name, result).Inc()

	b.mu.Lock()
	if probing {
		b.inFlight--
	}
	b.recordLocked(failed)
	b.mu.Unlock()

	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}
