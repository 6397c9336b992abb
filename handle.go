package lifecycle

import "context"

// Handle is the narrow, read-mostly view of the Manager a running
// component sees (spec §4.9). The manager is the sole owner of components;
// components reach back into the manager only through their Handle, which
// keeps the object graph one-directional.
type Handle interface {
	Name() string

	HasComponent(name string) bool
	IsRunning(name string) bool
	ComponentNames() []string
	RunningComponents() []string
	StalledComponents() []string
	StoppedComponents() []string
	SystemState() SystemState
	StartupOrder() ([]string, error)

	SendMessageToComponent(ctx context.Context, name string, payload any, opts MessageOptions) MessageResult
	BroadcastMessage(ctx context.Context, payload any, componentNames []string, opts MessageOptions) []MessageResult
	GetValue(ctx context.Context, name, key string) ValueResult

	CheckHealth(ctx context.Context, name string) HealthResult
	CheckAllHealth(ctx context.Context) AggregateHealthResult

	TriggerReload(ctx context.Context) error
	TriggerInfo(ctx context.Context) error
	TriggerDebug(ctx context.Context) error
}

// scopedHandle implements Handle for one registered component, injecting
// its own name as the `from` attribution on every messaging/value call
// (spec §4.6 "from attribution", §4.9).
type scopedHandle struct {
	m    *Manager
	name string
}

func newScopedHandle(m *Manager, name string) *scopedHandle {
	return &scopedHandle{m: m, name: name}
}

func (h *scopedHandle) Name() string { return h.name }

func (h *scopedHandle) HasComponent(name string) bool { return h.m.HasComponent(name) }
func (h *scopedHandle) IsRunning(name string) bool    { return h.m.IsRunning(name) }
func (h *scopedHandle) ComponentNames() []string       { return h.m.ComponentNames() }
func (h *scopedHandle) RunningComponents() []string    { return h.m.ComponentsByState(StateRunning) }
func (h *scopedHandle) StalledComponents() []string    { return h.m.ComponentsByState(StateStalled) }
func (h *scopedHandle) StoppedComponents() []string    { return h.m.ComponentsByState(StateStopped) }
func (h *scopedHandle) SystemState() SystemState       { return h.m.SystemState() }
func (h *scopedHandle) StartupOrder() ([]string, error) { return h.m.StartupOrder() }

func (h *scopedHandle) SendMessageToComponent(ctx context.Context, name string, payload any, opts MessageOptions) MessageResult {
	opts.From = h.name
	return h.m.SendMessageToComponent(ctx, name, payload, opts)
}

func (h *scopedHandle) BroadcastMessage(ctx context.Context, payload any, componentNames []string, opts MessageOptions) []MessageResult {
	opts.From = h.name
	return h.m.BroadcastMessage(ctx, payload, componentNames, opts)
}

func (h *scopedHandle) GetValue(ctx context.Context, name, key string) ValueResult {
	return h.m.GetValue(ctx, name, key, h.name)
}

func (h *scopedHandle) CheckHealth(ctx context.Context, name string) HealthResult {
	return h.m.CheckHealth(ctx, name)
}

func (h *scopedHandle) CheckAllHealth(ctx context.Context) AggregateHealthResult {
	return h.m.CheckAllHealth(ctx)
}

func (h *scopedHandle) TriggerReload(ctx context.Context) error { return h.m.TriggerReload(ctx) }
func (h *scopedHandle) TriggerInfo(ctx context.Context) error   { return h.m.TriggerInfo(ctx) }
func (h *scopedHandle) TriggerDebug(ctx context.Context) error  { return h.m.TriggerDebug(ctx) }

// --- signal-level triggers (spec §4.1/§8 scenario 5) -----------------------

// TriggerReload invokes OnReload on every running component that implements
// Reloader. If startup is in progress, only already-started (running)
// components are notified, matching spec §8 scenario 5 ("Reload during
// startup").
func (m *Manager) TriggerReload(ctx context.Context) error {
	m.mu.Lock()
	starting := m.isStarting
	m.mu.Unlock()
	if starting {
		m.log.Info("reload during startup: only already-started components notified")
	}
	m.events.emit(Event{Kind: EventSignalReload})
	for _, e := range m.reg.all() {
		if e.state.get() != StateRunning {
			continue
		}
		if r, ok := e.component.(Reloader); ok {
			if err := r.OnReload(ctx); err != nil {
				m.log.Warn("reload handler failed", "component", e.name, "error", err)
			}
		}
	}
	return nil
}

// TriggerInfo invokes OnInfo on every running component that implements
// Informer.
func (m *Manager) TriggerInfo(ctx context.Context) error {
	m.events.emit(Event{Kind: EventSignalInfo})
	for _, e := range m.reg.all() {
		if e.state.get() != StateRunning {
			continue
		}
		if in, ok := e.component.(Informer); ok {
			if err := in.OnInfo(ctx); err != nil {
				m.log.Warn("info handler failed", "component", e.name, "error", err)
			}
		}
	}
	return nil
}

// TriggerDebug invokes OnDebug on every running component that implements
// Debugger.
func (m *Manager) TriggerDebug(ctx context.Context) error {
	m.events.emit(Event{Kind: EventSignalDebug})
	for _, e := range m.reg.all() {
		if e.state.get() != StateRunning {
			continue
		}
		if d, ok := e.component.(Debugger); ok {
			if err := d.OnDebug(ctx); err != nil {
				m.log.Warn("debug handler failed", "component", e.name, "error", err)
			}
		}
	}
	return nil
}
