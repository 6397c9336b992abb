package lifecycle

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthResult is the outcome of a single component's health probe (spec
// §4.7).
type HealthResult struct {
	Name       string
	Healthy    bool
	Message    string
	Details    map[string]any
	CheckedAt  time.Time
	DurationMS int64
	Err        error
	TimedOut   bool
	Code       Code
}

// CheckHealth probes a single component (spec §4.7): unknown components
// report not_found, non-running components report their state, components
// without a HealthChecker are implicitly healthy (no_handler), otherwise
// the probe races against healthCheckTimeoutMS.
func (m *Manager) CheckHealth(ctx context.Context, name string) HealthResult {
	res := HealthResult{Name: name, CheckedAt: time.Now()}
	m.events.emit(Event{Kind: EventHealthCheckStarted, Name: name})

	e, ok := m.reg.get(name)
	if !ok {
		res.Code = CodeNotFound
		return res
	}

	switch e.state.get() {
	case StateStopped:
		res.Code = CodeStopped
		return res
	case StateStalled:
		res.Code = CodeStalled
		return res
	case StateRunning:
	default:
		res.Code = CodeStopped
		return res
	}

	checker, ok := e.component.(HealthChecker)
	if !ok {
		res.Healthy = true
		res.Code = CodeNoHandler
		m.events.emit(Event{Kind: EventHealthCheckCompleted, Name: name})
		return res
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.timeouts.HealthCheck)
	defer cancel()

	type outcome struct {
		status HealthStatus
		err    error
	}
	ch := make(chan outcome, 1)
	started := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: panicToErr(r)}
			}
		}()
		status, err := checker.HealthCheck(checkCtx)
		ch <- outcome{status: status, err: err}
	}()

	select {
	case o := <-ch:
		res.DurationMS = time.Since(started).Milliseconds()
		if o.err != nil {
			res.Err = o.err
			res.Code = CodeError
			m.events.emit(Event{Kind: EventHealthCheckFailed, Name: name, Err: o.err})
			return res
		}
		res.Healthy = o.status.Healthy
		res.Message = o.status.Message
		res.Details = o.status.Details
		res.Code = CodeOK
		m.events.emit(Event{Kind: EventHealthCheckCompleted, Name: name})
		return res
	case <-checkCtx.Done():
		res.TimedOut = true
		res.DurationMS = time.Since(started).Milliseconds()
		res.Code = CodeTimeout
		m.events.emit(Event{Kind: EventHealthCheckFailed, Name: name, Err: ErrStopTimeout})
		go func() { <-ch }()
		return res
	}
}

// AggregateHealthResult is the outcome of CheckAllHealth (spec §4.7).
type AggregateHealthResult struct {
	Healthy bool
	Code    Code
	Results []HealthResult
}

// CheckAllHealth probes every running component in parallel (one errgroup
// goroutine per component, without WithContext's error short-circuit since
// one probe's failure must not cancel the others) and aggregates with
// precedence error > timeout > degraded > ok, where degraded is any
// unhealthy result other than no_handler.
func (m *Manager) CheckAllHealth(ctx context.Context) AggregateHealthResult {
	names := m.ComponentsByState(StateRunning)
	results := make([]HealthResult, len(names))

	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = m.CheckHealth(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	agg := AggregateHealthResult{Healthy: true, Code: CodeOK, Results: results}
	sawTimeout, sawDegraded, sawError := false, false, false
	for _, r := range results {
		if !r.Healthy {
			agg.Healthy = false
		}
		switch {
		case r.Code == CodeError:
			sawError = true
		case r.Code == CodeTimeout:
			sawTimeout = true
		case !r.Healthy && r.Code != CodeNoHandler:
			sawDegraded = true
		}
	}
	switch {
	case sawError:
		agg.Code = CodeError
	case sawTimeout:
		agg.Code = CodeTimeout
	case sawDegraded:
		agg.Code = CodeDegraded
	default:
		agg.Code = CodeOK
	}
	return agg
}
