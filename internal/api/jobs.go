package api

import (
	"context"
	"sync"
	"time"

	"review-insights/pkg/logging"
	"review-insights/pkg/metrics"
)

// Jobs runs work that outlives the request that started it. Jobs share a
// base context cancelled by Shutdown.
type Jobs struct {
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logging.ComponentLogger
}

func NewJobs(ctx context.Context, log *logging.Logger) *Jobs {
	if log == nil {
		log = logging.NewNop()
	}
	base, cancel := context.WithCancel(ctx)
	return &Jobs{base: base, cancel: cancel, log: log.WithComponent("jobs")}
}

// Go starts fn with a context derived from the base context, bounded by
// timeout and carrying the values of reqCtx (request id, user id).
func (j *Jobs) Go(reqCtx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	j.wg.Add(1)
	metrics.JobsInFlight.Inc()
	go func() {
		defer j.wg.Done()
		defer metrics.JobsInFlight.Dec()
		ctx, cancel := context.WithTimeout(mergeValues(j.base, reqCtx), timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			j.log.Ctx(ctx).Error("background job failed", err,
				logging.String("job", name),
				logging.Duration("elapsed", time.Since(start)))
			return
		}
		j.log.Ctx(ctx).Debug("background job done",
			logging.String("job", name),
			logging.Duration("elapsed", time.Since(start)))
	}()
}

// Wait blocks until every job has returned or ctx is done.
func (j *Jobs) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels running jobs and waits for them to return.
func (j *Jobs) Shutdown(ctx context.Context) error {
	j.cancel()
	return j.Wait(ctx)
}

// valueCtx takes cancellation from one context and values from another.
type valueCtx struct {
	context.Context
	values context.Context
}

func (c valueCtx) Value(key any) any {
	if v := c.Context.Value(key); v != nil {
		return v
	}
	return c.values.Value(key)
}

func mergeValues(base, values context.Context) context.Context {
	return valueCtx{Context: base, values: values}
}
