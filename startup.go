package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// StartupOptions configures a bulk StartAll call (spec §4.4).
type StartupOptions struct {
	// TimeoutMS bounds the whole operation; <= 0 disables the global timer.
	TimeoutMS int
	// IgnoreStalledComponents allows StartAll to proceed even though stalled
	// components exist (they are still individually skipped).
	IgnoreStalledComponents bool
}

// FailedOptionalComponent records an optional component whose Start failed
// without aborting the bulk startup.
type FailedOptionalComponent struct {
	Name string
	Err  error
}

// StartupResult is the rich outcome of StartAll (spec §4.4).
type StartupResult struct {
	Success                   bool
	StartedComponents         []string
	FailedOptionalComponents  []FailedOptionalComponent
	SkippedDueToDependency    []string
	BlockedByStalledComponents []string
	Reason                    string
	Code                      Code
	Err                       error
	DurationMS                int64
	TimedOut                  bool
}

// StartAll starts every registered component in dependency order (spec
// §4.4). Grounded on the teacher's runComponent/Run goroutine orchestration
// in lifecycle.go, restructured from "start everything, wait on readiness
// probes" to strict sequential topological order, per the REDESIGN FLAGS
// section of SPEC_FULL.md.
func (m *Manager) StartAll(ctx context.Context, opts StartupOptions) StartupResult {
	start := time.Now()
	res := StartupResult{}

	m.mu.Lock()
	if m.isStarting {
		m.mu.Unlock()
		res.Code = CodeAlreadyInProgress
		res.Err = ErrAlreadyInProgress
		return res
	}
	if m.isShuttingDown {
		m.mu.Unlock()
		res.Code = CodeShutdownInProgress
		res.Err = ErrShutdownInProgress
		return res
	}

	all := m.reg.all()
	if len(all) == 0 {
		m.mu.Unlock()
		res.Code = CodeNoComponentsRegistered
		res.Err = ErrNoComponentsRegistered
		return res
	}

	running, stalled := 0, 0
	var stalledNames []string
	for _, e := range all {
		switch e.state.get() {
		case StateRunning:
			running++
		case StateStalled:
			stalled++
			stalledNames = append(stalledNames, e.name)
		}
	}
	if stalled > 0 && !opts.IgnoreStalledComponents {
		m.mu.Unlock()
		res.Code = CodeStalledComponentsExist
		res.Err = ErrStalledComponentsExist
		res.BlockedByStalledComponents = stalledNames
		return res
	}
	if running > 0 && running < len(all) {
		// Partial state: treat as already in progress from the caller's
		// perspective rather than silently re-attempting a subset.
		m.mu.Unlock()
		res.Code = CodeAlreadyInProgress
		res.Err = ErrAlreadyInProgress
		return res
	}
	if running == len(all) {
		m.mu.Unlock()
		res.Success = true
		res.Code = CodeOK
		res.DurationMS = time.Since(start).Milliseconds()
		return res
	}

	m.isStarting = true
	m.shutdownMethod = ""
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isStarting = false
		m.mu.Unlock()
	}()

	order, err := m.reg.startupOrder()
	if err != nil {
		res.Code = CodeDependencyCycle
		res.Err = err
		return res
	}

	var cancel context.CancelFunc
	runCtx := ctx
	if opts.TimeoutMS > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	skippedByDep := map[string]bool{}
	skippedByStall := map[string]bool{}
	started := make([]string, 0, len(order))

	byName := make(map[string]*registryEntry, len(order))
	for _, e := range m.reg.all() {
		byName[e.name] = e
	}

nameLoop:
	for _, name := range order {
		select {
		case <-runCtx.Done():
			res.TimedOut = true
			break nameLoop
		default:
		}

		e := byName[name]
		if e == nil {
			continue
		}
		if e.state.get() == StateStalled {
			skippedByStall[name] = true
			continue
		}

		for _, dep := range e.deps {
			de := byName[dep]
			if de == nil {
				continue
			}
			blocked := skippedByDep[dep] || skippedByStall[dep] ||
				(de.state.get() == StateFailed) || (de.state.get() == StateStalled)
			if blocked && !de.optional {
				skippedByDep[name] = true
				continue nameLoop
			}
		}

		m.mu.Lock()
		shuttingDown := m.isShuttingDown
		m.mu.Unlock()
		if shuttingDown {
			m.rollback(runCtx, started)
			res.Code = CodeShutdownInProgress
			res.Err = ErrShutdownInProgress
			res.DurationMS = time.Since(start).Milliseconds()
			return res
		}

		sres := m.startComponent(runCtx, name, startComponentOptions{allowDuringBulkStartup: true})
		if sres.err != nil {
			if e.optional {
				m.log.Warn("optional component failed to start", "component", name, "error", sres.err)
				res.FailedOptionalComponents = append(res.FailedOptionalComponents, FailedOptionalComponent{Name: name, Err: sres.err})
				continue
			}
			m.rollback(runCtx, started)
			res.Code = CodeUnknownError
			if sres.timedOut {
				res.Code = CodeStartupTimeout
			}
			res.Err = fmt.Errorf("lifecycle: required component %q failed to start: %w", name, sres.err)
			res.DurationMS = time.Since(start).Milliseconds()
			return res
		}
		started = append(started, name)

		if m.attachSignalsOnFirstStart && m.signals != nil {
			m.mu.Lock()
			already := m.signalsAttached
			m.signalsAttached = true
			m.mu.Unlock()
			if !already {
				if err := m.signals.Attach(); err == nil {
					m.events.emit(Event{Kind: EventSignalsAttached})
				}
			}
		}
	}

	for name := range skippedByDep {
		res.SkippedDueToDependency = append(res.SkippedDueToDependency, name)
	}

	if res.TimedOut {
		m.rollback(ctx, started)
		res.Code = CodeStartupTimeout
		res.Err = ErrStartTimeout
		res.DurationMS = time.Since(start).Milliseconds()
		return res
	}

	res.Success = true
	res.Code = CodeOK
	res.StartedComponents = started
	res.DurationMS = time.Since(start).Milliseconds()
	m.events.emit(Event{Kind: EventStarted, Duration: res.DurationMS})
	return res
}

// rollback stops every component in started, in reverse order, via the
// internal stop pipeline (spec §4.4 step 3d/e).
func (m *Manager) rollback(ctx context.Context, started []string) {
	m.events.emit(Event{Kind: EventStartupRollback})
	for i := len(started) - 1; i >= 0; i-- {
		m.stopComponent(ctx, started[i], stopComponentOptions{force: true, internalRollback: true})
	}
}

// startComponentOptions configures the per-component start primitive.
type startComponentOptions struct {
	allowDuringBulkStartup   bool
	allowRequiredDependencies bool
}

type componentStartOutcome struct {
	err      error
	timedOut bool
}

// startComponent is §4.4a: the per-component start primitive used both by
// StartAll and by a standalone single-component start. It races Start
// against the component's startup timeout, invokes OnStartupAborted on
// timeout, and normalizes state transitions.
func (m *Manager) startComponent(ctx context.Context, name string, opts startComponentOptions) componentStartOutcome {
	m.mu.Lock()
	shuttingDown := m.isShuttingDown
	starting := m.isStarting
	m.mu.Unlock()
	if shuttingDown {
		return componentStartOutcome{err: ErrShutdownInProgress}
	}
	if starting && !opts.allowDuringBulkStartup {
		return componentStartOutcome{err: ErrAlreadyInProgress}
	}

	e, ok := m.reg.get(name)
	if !ok {
		return componentStartOutcome{err: ErrUnknownComponent}
	}

	if !opts.allowRequiredDependencies {
		for _, dep := range e.deps {
			de, ok := m.reg.get(dep)
			if !ok {
				continue
			}
			if de.state.get() != StateRunning && !de.optional {
				return componentStartOutcome{err: fmt.Errorf("%w: %q requires %q to be running", ErrComponentNotRunning, name, dep)}
			}
		}
	}

	if !e.state.tryBeginStart() {
		return componentStartOutcome{err: ErrStartupInProgress}
	}
	m.events.emit(Event{Kind: EventComponentStarting, Name: name})

	startCtx, cancel := context.WithTimeout(ctx, e.timeouts.Startup)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- e.component.Start(startCtx)
	}()

	startedAt := time.Now()
	select {
	case err := <-resultCh:
		if m.metrics != nil {
			m.metrics.ObserveStart(name, time.Since(startedAt), err)
		}
		if err != nil {
			e.state.toFailed(err)
			if m.metrics != nil {
				m.metrics.IncError(name)
			}
			m.events.emit(Event{Kind: EventComponentStartFailed, Name: name, Err: err})
			return componentStartOutcome{err: err}
		}
		e.state.toRunning(time.Now())
		m.events.emit(Event{Kind: EventComponentStarted, Name: name, Duration: time.Since(startedAt).Milliseconds()})
		return componentStartOutcome{}
	case <-startCtx.Done():
		if aborter, ok := e.component.(StartupAborter); ok {
			safeCall(m.reportError, aborter.OnStartupAborted)
		}
		go func() {
			<-resultCh // drain the late result so Start's goroutine never leaks
		}()
		e.state.toFailed(ErrStartTimeout)
		if m.metrics != nil {
			m.metrics.IncError(name)
		}
		m.events.emit(Event{Kind: EventComponentStartTimeout, Name: name})
		return componentStartOutcome{err: ErrStartTimeout, timedOut: true}
	}
}

// safeCall invokes fn, recovering any panic and routing it to reportError,
// matching the "abort callbacks are synchronous and must not block, and
// must never corrupt manager state" rule of spec §3/§9.
func safeCall(reportError func(error), fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if reportError != nil {
				reportError(fmt.Errorf("lifecycle: abort callback panicked: %v", r))
			}
		}
	}()
	fn()
}
