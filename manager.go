package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SystemState is the manager's derived (never stored) overall status,
// computed by the precedence rule of spec §3 rule 6.
type SystemState int

const (
	SystemRunning SystemState = iota
	SystemReady
	SystemStalled
	SystemNoComponents
	SystemStarting
	SystemShuttingDown
)

func (s SystemState) String() string {
	switch s {
	case SystemRunning:
		return "running"
	case SystemReady:
		return "ready"
	case SystemStalled:
		return "stalled"
	case SystemNoComponents:
		return "no-components"
	case SystemStarting:
		return "starting"
	case SystemShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// MetricsSink receives per-component timing/outcome observations. It is
// optional; Manager works fine with a nil sink. internal/obsmetrics
// implements this interface as a Prometheus collector (spec/SPEC_FULL §6).
type MetricsSink interface {
	ObserveStart(name string, d time.Duration, err error)
	ObserveStop(name string, d time.Duration, err error)
	IncError(name string)
}

// BeforeExitDecision is returned by a logger's before-exit hook to tell the
// caller whether to defer process exit while the manager finishes an
// in-flight shutdown (spec §6, testable property 6).
type BeforeExitDecision struct {
	Wait bool
}

// Logger is the scoped-logger capability the manager consumes (spec §6).
// internal/telemetry provides a zap-backed implementation; tests may supply
// a no-op or recording stub. SetBeforeExitCallback registers the hook a
// logger implementation invokes (via the optional ExitHookRunner capability
// below) before the process actually exits.
type Logger interface {
	Service(name string) Logger
	Entity(name string) Logger
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Success(msg string, kv ...any)
	Debug(msg string, kv ...any)
	SetBeforeExitCallback(cb func(exitCode int, isFirstExit bool) BeforeExitDecision)
}

// ExitHookRunner is an optional Logger capability, duck-checked via type
// assertion like the component optional interfaces in component.go: a
// logger that actually drives a before-exit hook (internal/telemetry's
// zap-backed logger does) implements it so Manager.RunBeforeExit can invoke
// the registered callback without widening Logger itself.
type ExitHookRunner interface {
	RunBeforeExit(exitCode int) BeforeExitDecision
}

// noopLogger is used when ManagerOptions.Logger is nil.
type noopLogger struct{}

func (noopLogger) Service(string) Logger      { return noopLogger{} }
func (noopLogger) Entity(string) Logger       { return noopLogger{} }
func (noopLogger) Info(string, ...any)        {}
func (noopLogger) Warn(string, ...any)        {}
func (noopLogger) Error(string, ...any)       {}
func (noopLogger) Success(string, ...any)     {}
func (noopLogger) Debug(string, ...any)       {}
func (noopLogger) SetBeforeExitCallback(func(exitCode int, isFirstExit bool) BeforeExitDecision) {}

// ManagerOptions configures a Manager at construction time.
type ManagerOptions struct {
	Logger Logger
	Metrics MetricsSink
	// ReportError receives panics recovered from user callbacks (event
	// subscribers, signal handlers) that would otherwise be lost. Defaults
	// to logging via Logger.
	ReportError func(error)
	// AttachSignalsOnFirstStart, when set, attaches sig to the manager's
	// running set as soon as the first component reaches running (spec
	// §4.4a "attachSignalsOnStart").
	Signals                   *SignalCoordinator
	AttachSignalsOnFirstStart bool
	// EnableLoggerExitHook registers the manager's before-exit hook with
	// Logger (via SetBeforeExitCallback) at construction time, so that a
	// logger implementing ExitHookRunner defers process exit while a
	// shutdown is in flight (spec §6, testable property 6).
	EnableLoggerExitHook bool
}

// Manager is the component lifecycle orchestrator: the registry, resolver,
// state machine, startup/shutdown engines, messaging, health, and events
// all hang off one Manager instance (spec §2).
type Manager struct {
	reg    *registry
	events *eventBus
	log    Logger
	metrics MetricsSink
	reportError func(error)
	signals     *SignalCoordinator
	attachSignalsOnFirstStart bool

	mu             sync.Mutex
	isStarting     bool
	isShuttingDown bool
	shutdownMethod string
	signalsAttached bool
}

// NewManager constructs an empty Manager.
func NewManager(opts ManagerOptions) *Manager {
	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}
	reportErr := opts.ReportError
	if reportErr == nil {
		reportErr = func(err error) { log.Error("unhandled callback error", "error", err) }
	}
	m := &Manager{
		reg:                       newRegistry(),
		events:                    newEventBus(reportErr),
		log:                       log.Service("lifecycle-manager"),
		metrics:                   opts.Metrics,
		reportError:               reportErr,
		signals:                   opts.Signals,
		attachSignalsOnFirstStart: opts.AttachSignalsOnFirstStart,
	}
	if opts.EnableLoggerExitHook {
		m.log.SetBeforeExitCallback(m.beforeExitHook)
	}
	return m
}

// beforeExitHook is the callback registered with Logger when
// ManagerOptions.EnableLoggerExitHook is set. A shutdown in progress when
// the hook fires must defer process exit (spec §8 testable property 6).
func (m *Manager) beforeExitHook(exitCode int, isFirstExit bool) BeforeExitDecision {
	m.mu.Lock()
	shuttingDown := m.isShuttingDown
	m.mu.Unlock()
	return BeforeExitDecision{Wait: shuttingDown}
}

// RunBeforeExit invokes the logger's before-exit hook if it implements
// ExitHookRunner, reporting whether the hook fired at all. A real program
// calls this immediately before os.Exit so a logger can defer process exit
// while a shutdown started by a signal finishes (spec §6).
func (m *Manager) RunBeforeExit(exitCode int) (decision BeforeExitDecision, ran bool) {
	runner, ok := m.log.(ExitHookRunner)
	if !ok {
		return BeforeExitDecision{}, false
	}
	return runner.RunBeforeExit(exitCode), true
}

// --- registry-facing surface -------------------------------------------------

// Register adds component at the end of the registry.
func (m *Manager) Register(component Component) RegisterResult {
	return m.InsertAt(component, PositionEnd, "")
}

// InsertAt adds component at the requested position (spec §4.2).
func (m *Manager) InsertAt(component Component, pos InsertPosition, target string) RegisterResult {
	m.mu.Lock()
	starting, shuttingDown := m.isStarting, m.isShuttingDown
	m.mu.Unlock()

	res := m.reg.register(component, pos, target, shuttingDown, starting)
	if res.Success {
		if hr, ok := component.(HandleReceiver); ok {
			entry, _ := m.reg.get(res.Name)
			h := newScopedHandle(m, res.Name)
			entry.handle = h
			hr.SetHandle(h)
		}
		m.events.emit(Event{Kind: EventRegistrationAccepted, Name: res.Name})
	} else {
		m.events.emit(Event{Kind: EventRegistrationRejected, Name: res.Name, Code: res.Code, Err: res.Err})
	}
	return res
}

// Unregister removes a component from the registry, optionally stopping it
// first (spec §4.2 Unregister).
func (m *Manager) Unregister(name string, stopIfRunning bool) error {
	m.mu.Lock()
	starting, shuttingDown := m.isStarting, m.isShuttingDown
	m.mu.Unlock()
	if starting || shuttingDown {
		return ErrStartupInProgress
	}

	entry, ok := m.reg.get(name)
	if !ok {
		return ErrUnknownComponent
	}

	state := entry.state.get()
	if state == StateStalled && stopIfRunning {
		return fmt.Errorf("lifecycle: cannot unregister stalled component %q with stopIfRunning=true", name)
	}
	if state == StateRunning && stopIfRunning {
		res := m.stopComponent(context.Background(), name, stopComponentOptions{force: true})
		if entry.state.get() != StateStopped {
			return fmt.Errorf("lifecycle: unregister aborted, %q left in state %s: %v", name, entry.state.get(), res.Err)
		}
	}

	if err := m.reg.unregister(name); err != nil {
		return err
	}
	m.events.emit(Event{Kind: EventComponentUnregistered, Name: name})
	return nil
}

// HasComponent reports whether name is currently registered.
func (m *Manager) HasComponent(name string) bool { return m.reg.has(name) }

// IsRunning reports whether name is registered and in StateRunning.
func (m *Manager) IsRunning(name string) bool {
	e, ok := m.reg.get(name)
	return ok && e.state.get() == StateRunning
}

// ComponentNames returns all registered component names in registry order.
func (m *Manager) ComponentNames() []string { return m.reg.names() }

// ComponentsByState returns the names of every component currently in state.
func (m *Manager) ComponentsByState(state State) []string {
	var out []string
	for _, e := range m.reg.all() {
		if e.state.get() == state {
			out = append(out, e.name)
		}
	}
	return out
}

// Counts returns the number of components in each state, keyed by State.
func (m *Manager) Counts() map[State]int {
	out := make(map[State]int)
	for _, e := range m.reg.all() {
		out[e.state.get()]++
	}
	return out
}

// StartupOrder returns the current topological order without mutating
// anything.
func (m *Manager) StartupOrder() ([]string, error) { return m.reg.startupOrder() }

// ValidateDependencies reports every missing dependency and cycle present
// in the registry without erroring (spec §4.2).
func (m *Manager) ValidateDependencies() ([]MissingDependency, [][]string) {
	return m.reg.validateDependencies()
}

// SystemState computes the derived overall state per spec §3 rule 6:
// shutting-down > starting > no-components > stalled > ready > running.
func (m *Manager) SystemState() SystemState {
	m.mu.Lock()
	starting, shuttingDown := m.isStarting, m.isShuttingDown
	m.mu.Unlock()

	if shuttingDown {
		return SystemShuttingDown
	}
	if starting {
		return SystemStarting
	}
	all := m.reg.all()
	if len(all) == 0 {
		return SystemNoComponents
	}
	running, stalled := 0, 0
	for _, e := range all {
		switch e.state.get() {
		case StateRunning:
			running++
		case StateStalled:
			stalled++
		}
	}
	if stalled > 0 {
		return SystemStalled
	}
	if running == 0 {
		return SystemReady
	}
	return SystemRunning
}

// IsStarted reports spec §3 invariant 5: |running| + |stalled| > 0.
func (m *Manager) IsStarted() bool {
	for _, e := range m.reg.all() {
		switch e.state.get() {
		case StateRunning, StateStalled:
			return true
		}
	}
	return false
}

func (m *Manager) entryOrNil(name string) *registryEntry {
	e, _ := m.reg.get(name)
	return e
}

// NewManagedSignalCoordinator builds a SignalCoordinator wired to this
// Manager's StopAll/TriggerReload/TriggerInfo/TriggerDebug, honoring double-
// signal protection (spec §6 "once isShuttingDown=true, subsequent shutdown
// signals are logged and ignored"). extra's callbacks, if set, are invoked
// in addition to the manager's own wiring.
func (m *Manager) NewManagedSignalCoordinator(extra SignalOptions) *SignalCoordinator {
	userShutdown, userReload, userInfo, userDebug := extra.OnShutdown, extra.OnReload, extra.OnInfo, extra.OnDebug

	extra.OnShutdown = func(method string) {
		m.mu.Lock()
		already := m.isShuttingDown
		m.mu.Unlock()
		if already {
			m.log.Info("shutdown signal ignored: shutdown already in progress", "method", method)
			return
		}
		go m.StopAll(context.Background(), ShutdownOptions{
			Method:           method,
			RetryStalled:     true,
			HaltOnStall:      true,
			WarningTimeoutMS: int(DefaultShutdownWarningTimeout / time.Millisecond),
		})
		if userShutdown != nil {
			userShutdown(method)
		}
	}
	extra.OnReload = func() {
		_ = m.TriggerReload(context.Background())
		if userReload != nil {
			userReload()
		}
	}
	extra.OnInfo = func() {
		_ = m.TriggerInfo(context.Background())
		if userInfo != nil {
			userInfo()
		}
	}
	extra.OnDebug = func() {
		_ = m.TriggerDebug(context.Background())
		if userDebug != nil {
			userDebug()
		}
	}
	extra.ReportError = m.reportError

	c := NewSignalCoordinator(extra)
	m.signals = c
	return c
}
