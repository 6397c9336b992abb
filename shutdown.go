package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownOptions configures a bulk StopAll call (spec §4.5).
type ShutdownOptions struct {
	TimeoutMS int // 0 uses DefaultShutdownTimeout; negative disables the global timer
	// RetryStalled re-enters force-stopping for already-stalled components.
	RetryStalled bool
	// HaltOnStall stops processing the shutdown loop after the first stall.
	HaltOnStall bool
	// Method records the triggering signal/method name for attribution.
	Method string
	// WarningTimeoutMS bounds the global warning phase; 0 = fire-and-forget,
	// negative = skip entirely.
	WarningTimeoutMS int
}

// DefaultShutdownOptions mirrors spec §4.5's documented defaults.
func DefaultShutdownOptions() ShutdownOptions {
	return ShutdownOptions{
		TimeoutMS:        int(DefaultShutdownTimeout / time.Millisecond),
		RetryStalled:     true,
		HaltOnStall:      true,
		WarningTimeoutMS: int(DefaultShutdownWarningTimeout / time.Millisecond),
	}
}

// ShutdownResult is the rich outcome of StopAll (spec §4.5).
type ShutdownResult struct {
	Success           bool
	StoppedComponents []string
	StalledComponents []StallInfo
	DurationMS        int64
	TimedOut          bool
	Reason            string
	Code              Code
	Err               error
}

// StopAll stops every running (and, if retryStalled, every stalled)
// component in reverse topological order, through the global warning phase
// followed by the per-component graceful-then-force pipeline (spec §4.5).
func (m *Manager) StopAll(ctx context.Context, opts ShutdownOptions) ShutdownResult {
	start := time.Now()
	res := ShutdownResult{}

	m.mu.Lock()
	if m.isShuttingDown {
		m.mu.Unlock()
		res.Code = CodeAlreadyInProgress
		res.Err = ErrAlreadyInProgress
		return res
	}
	m.isShuttingDown = true
	if opts.Method != "" {
		m.shutdownMethod = opts.Method
	}
	m.mu.Unlock()

	m.events.emit(Event{Kind: EventShutdownInitiated, Method: opts.Method})

	defer func() {
		m.mu.Lock()
		m.isShuttingDown = false
		m.mu.Unlock()
	}()

	timeoutMS := opts.TimeoutMS
	if timeoutMS == 0 {
		timeoutMS = int(DefaultShutdownTimeout / time.Millisecond)
	}
	var cancel context.CancelFunc
	runCtx := ctx
	if timeoutMS > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
		defer cancel()
	}

	m.runWarningPhase(runCtx, opts.WarningTimeoutMS)

	order, err := m.reg.startupOrder()
	byName := make(map[string]*registryEntry, m.reg.len())
	for _, e := range m.reg.all() {
		byName[e.name] = e
	}
	var shutdownOrder []string
	if err != nil {
		// Resolver failed (shouldn't happen post-registration, but fall
		// back to reverse registration order per spec §4.5 "(B)").
		shutdownOrder = m.reg.names()
	} else {
		shutdownOrder = order
	}

	target := make([]string, 0, len(shutdownOrder))
	for i := len(shutdownOrder) - 1; i >= 0; i-- {
		name := shutdownOrder[i]
		e := byName[name]
		if e == nil {
			continue
		}
		st := e.state.get()
		if st == StateRunning || (st == StateStalled && opts.RetryStalled) {
			target = append(target, name)
		} else if st == StateStalled {
			res.StalledComponents = append(res.StalledComponents, *e.state.stallInfo())
		}
	}

	stopped := make([]string, 0, len(target))
	for _, name := range target {
		select {
		case <-runCtx.Done():
			res.TimedOut = true
			res.Code = CodeUnknownError
			res.DurationMS = time.Since(start).Milliseconds()
			res.StoppedComponents = stopped
			return res
		default:
		}

		sres := m.stopComponent(runCtx, name, stopComponentOptions{force: opts.RetryStalled, internalRollback: false})
		if sres.Code == CodeStopped || sres.Code == CodeOK {
			stopped = append(stopped, name)
			continue
		}
		if info := byName[name].state.stallInfo(); info != nil {
			res.StalledComponents = append(res.StalledComponents, *info)
			if opts.HaltOnStall {
				break
			}
		}
	}

	res.StoppedComponents = stopped
	res.DurationMS = time.Since(start).Milliseconds()
	res.Success = len(res.StalledComponents) == 0
	if res.Success {
		res.Code = CodeOK
	} else {
		res.Code = CodeStalled
	}
	m.events.emit(Event{Kind: EventShutdownCompleted, Duration: res.DurationMS})
	return res
}

// runWarningPhase implements §4.5 phase (A): invoke OnShutdownWarning on
// every running component. warningTimeoutMS semantics:
//
//	 0  -> fire-and-forget: launch handlers, flush one tick, return.
//	 >0 -> await all handlers with a global timeout race.
//	 <0 -> skip entirely.
func (m *Manager) runWarningPhase(ctx context.Context, warningTimeoutMS int) {
	if warningTimeoutMS < 0 {
		return
	}

	var warners []struct {
		name string
		w    ShutdownWarner
	}
	for _, e := range m.reg.all() {
		if e.state.get() != StateRunning {
			continue
		}
		if w, ok := e.component.(ShutdownWarner); ok {
			warners = append(warners, struct {
				name string
				w    ShutdownWarner
			}{e.name, w})
		}
	}
	if len(warners) == 0 {
		return
	}

	m.events.emit(Event{Kind: EventWarningStarted})

	if warningTimeoutMS == 0 {
		for _, wn := range warners {
			go func(name string, w ShutdownWarner) {
				err := w.OnShutdownWarning(context.Background())
				if err != nil {
					m.log.Warn("shutdown warning handler failed", "component", name, "error", err)
				}
				m.events.emit(Event{Kind: EventWarningCompleted, Name: name})
			}(wn.name, wn.w)
		}
		// Single microtask flush so already-synchronous handlers get a
		// chance to post their completion event before we declare the
		// global phase complete (spec §9 "load-bearing for test
		// determinism").
		select {
		case <-time.After(0):
		case <-ctx.Done():
		}
		return
	}

	warnCtx, cancel := context.WithTimeout(ctx, time.Duration(warningTimeoutMS)*time.Millisecond)
	defer cancel()

	g, gctx := errgroup.WithContext(context.Background())
	for _, wn := range warners {
		name, w := wn.name, wn.w
		g.Go(func() error {
			err := w.OnShutdownWarning(gctx)
			if err != nil {
				m.log.Warn("shutdown warning handler failed", "component", name, "error", err)
			}
			m.events.emit(Event{Kind: EventWarningCompleted, Name: name})
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-warnCtx.Done():
		for _, wn := range warners {
			m.events.emit(Event{Kind: EventWarningTimeout, Name: wn.name})
		}
	}
}

// stopComponentOptions configures the per-component stop primitive.
type stopComponentOptions struct {
	// force allows bypassing the has-running-dependents guard (used by
	// rollback and by the bulk shutdown loop, which already stops in
	// dependent-first order).
	force bool
	// internalRollback marks a stop invoked from startup rollback. stopComponent
	// emits the same per-component events with or without it; the rollback
	// itself emits a single startup:rollback before its stops.
	internalRollback bool
}

// StopComponentResult is the outcome of a single-component stop.
type StopComponentResult struct {
	Code Code
	Err  error
}

// StopComponent stops a single running component outside of a bulk
// shutdown. It rejects with has_running_dependents unless force is set
// (spec §5 "Ordering guarantees").
func (m *Manager) StopComponent(ctx context.Context, name string, force bool) StopComponentResult {
	if !force {
		for _, e := range m.reg.all() {
			if e.name == name {
				continue
			}
			for _, d := range e.deps {
				if d == name && e.state.get() == StateRunning {
					return StopComponentResult{Code: CodeError, Err: ErrHasRunningDependents}
				}
			}
		}
	}
	return m.stopComponent(ctx, name, stopComponentOptions{force: force})
}

// stopComponent is §4.5 phase (B): the graceful-then-force pipeline for one
// component.
func (m *Manager) stopComponent(ctx context.Context, name string, opts stopComponentOptions) StopComponentResult {
	e, ok := m.reg.get(name)
	if !ok {
		return StopComponentResult{Code: CodeNotFound, Err: ErrUnknownComponent}
	}

	st, retrying := e.state.tryBeginStop(opts.force)
	if st == StateStalled && !opts.force {
		return StopComponentResult{Code: CodeStalled, Err: fmt.Errorf("lifecycle: %q is stalled", name)}
	}
	if !retrying {
		return StopComponentResult{Code: CodeError, Err: fmt.Errorf("lifecycle: %q is not stoppable from state %s", name, e.state.get())}
	}

	if st == StateForceStopping {
		// Already stalled and retrying: skip straight to the force phase,
		// reusing whatever reason was previously recorded.
		prevReason := StallReasonTimeout
		if info := e.state.stallInfo(); info != nil {
			prevReason = info.Reason
		}
		return m.forcePhase(ctx, e, prevReason, nil)
	}

	m.events.emit(Event{Kind: EventComponentStopping, Name: name})
	startedAt := time.Now()
	stopCtx, cancel := context.WithTimeout(ctx, e.timeouts.ShutdownGraceful)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() { resultCh <- e.component.Stop(stopCtx) }()

	var gracefulErr error
	var gracefulTimedOut bool
	select {
	case err := <-resultCh:
		gracefulErr = err
	case <-stopCtx.Done():
		if aborter, ok := e.component.(StopAborter); ok {
			safeCall(m.reportError, aborter.OnStopAborted)
		}
		go func() { <-resultCh }()
		gracefulTimedOut = true
		gracefulErr = ErrStopTimeout
		m.events.emit(Event{Kind: EventComponentStopTimeout, Name: name})
	}

	if m.metrics != nil {
		m.metrics.ObserveStop(name, time.Since(startedAt), gracefulErr)
	}

	if gracefulErr == nil {
		e.state.toStopped(time.Now())
		m.events.emit(Event{Kind: EventComponentStopped, Name: name})
		return StopComponentResult{Code: CodeStopped}
	}

	reason := StallReasonError
	if gracefulTimedOut {
		reason = StallReasonTimeout
	}
	e.state.toForceStopping()
	return m.forcePhase(ctx, e, reason, gracefulErr)
}

// forcePhase is §4.5 B2: the force-stop half of the pipeline.
func (m *Manager) forcePhase(ctx context.Context, e *registryEntry, gracefulReason StallReason, gracefulErr error) StopComponentResult {
	forcer, ok := e.component.(ShutdownForcer)
	if !ok {
		e.state.toStalled(StallInfo{
			Name:      e.name,
			Phase:     StallPhaseGraceful,
			Reason:    gracefulReason,
			StalledAt: time.Now(),
			Err:       gracefulErr,
		})
		m.events.emit(Event{Kind: EventComponentStalled, Name: e.name})
		return StopComponentResult{Code: CodeStalled, Err: gracefulErr}
	}

	m.events.emit(Event{Kind: EventComponentForce, Name: e.name})
	forceCtx, cancel := context.WithTimeout(ctx, e.timeouts.ShutdownForce)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() { resultCh <- forcer.OnShutdownForce(forceCtx) }()

	var forceErr error
	var forceTimedOut bool
	select {
	case err := <-resultCh:
		forceErr = err
	case <-forceCtx.Done():
		if aborter, ok := e.component.(ShutdownForceAborter); ok {
			safeCall(m.reportError, aborter.OnShutdownForceAborted)
		}
		go func() { <-resultCh }()
		forceTimedOut = true
		forceErr = errors.New("lifecycle: force stop timed out")
		m.events.emit(Event{Kind: EventComponentForceTimeout, Name: e.name})
	}

	if forceErr == nil {
		e.state.toStopped(time.Now())
		m.events.emit(Event{Kind: EventComponentForceDone, Name: e.name})
		return StopComponentResult{Code: CodeStopped}
	}

	reason := StallReasonBoth
	if gracefulErr == nil {
		if forceTimedOut {
			reason = StallReasonTimeout
		} else {
			reason = StallReasonError
		}
	}
	e.state.toStalled(StallInfo{
		Name:      e.name,
		Phase:     StallPhaseForce,
		Reason:    reason,
		StalledAt: time.Now(),
		Err:       forceErr,
	})
	m.events.emit(Event{Kind: EventComponentStalled, Name: e.name})
	return StopComponentResult{Code: CodeStalled, Err: forceErr}
}
