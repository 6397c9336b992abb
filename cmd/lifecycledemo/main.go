// Command lifecycledemo drives a small registry of dependency-declaring
// components through startup, a health check, a point-to-point message, and
// a shutdown, with a managed signal coordinator attached. It replaces the teacher's example/ HTTP
// graph-visualizer demo (which served goscade's own JSON/graph API) with a
// plain CLI that exercises this module's registry/resolver/startup/
// shutdown/messaging/health/signals surface end to end.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/keverw/lifecycleion-sub001"
	"github.com/keverw/lifecycleion-sub001/internal/obsmetrics"
	"github.com/keverw/lifecycleion-sub001/internal/telemetry"
)

// loggerAdapter bridges telemetry.Logger onto lifecycle.Logger: the two
// declare the same methods, but Service/Entity return different types, so
// the adapter re-wraps the sub-loggers it returns to preserve the adapted
// type at every scoping level. It also forwards RunBeforeExit so the
// manager sees the wrapped logger's ExitHookRunner capability.
type loggerAdapter struct {
	telemetry.Logger
}

func (l loggerAdapter) Service(name string) lifecycle.Logger {
	return loggerAdapter{l.Logger.Service(name)}
}

func (l loggerAdapter) Entity(name string) lifecycle.Logger {
	return loggerAdapter{l.Logger.Entity(name)}
}

func (l loggerAdapter) RunBeforeExit(exitCode int) lifecycle.BeforeExitDecision {
	if r, ok := l.Logger.(lifecycle.ExitHookRunner); ok {
		return r.RunBeforeExit(exitCode)
	}
	return lifecycle.BeforeExitDecision{}
}

// dbComponent is a required, dependency-free component.
type dbComponent struct{ connected bool }

func (d *dbComponent) Name() string            { return "db" }
func (d *dbComponent) Dependencies() []string  { return nil }
func (d *dbComponent) Optional() bool          { return false }
func (d *dbComponent) Timeouts() lifecycle.Timeouts { return lifecycle.Timeouts{} }
func (d *dbComponent) Start(ctx context.Context) error {
	d.connected = true
	return nil
}
func (d *dbComponent) Stop(ctx context.Context) error {
	d.connected = false
	return nil
}
func (d *dbComponent) HealthCheck(ctx context.Context) (lifecycle.HealthStatus, error) {
	return lifecycle.HealthStatus{Healthy: d.connected}, nil
}

// cacheComponent is optional: its startup failure must not block web/api.
type cacheComponent struct{ fail bool }

func (c *cacheComponent) Name() string            { return "cache" }
func (c *cacheComponent) Dependencies() []string  { return nil }
func (c *cacheComponent) Optional() bool          { return true }
func (c *cacheComponent) Timeouts() lifecycle.Timeouts { return lifecycle.Timeouts{} }
func (c *cacheComponent) Start(ctx context.Context) error {
	if c.fail {
		return fmt.Errorf("cache: connection refused")
	}
	return nil
}
func (c *cacheComponent) Stop(ctx context.Context) error { return nil }

// webComponent depends on db and answers point-to-point messages.
type webComponent struct{}

func (w *webComponent) Name() string            { return "web" }
func (w *webComponent) Dependencies() []string  { return []string{"db"} }
func (w *webComponent) Optional() bool          { return false }
func (w *webComponent) Timeouts() lifecycle.Timeouts { return lifecycle.Timeouts{} }
func (w *webComponent) Start(ctx context.Context) error { return nil }
func (w *webComponent) Stop(ctx context.Context) error  { return nil }
func (w *webComponent) OnMessage(ctx context.Context, payload any, from string) (any, error) {
	return fmt.Sprintf("web received %v from %q", payload, from), nil
}

// apiComponent depends on web and the optional cache.
type apiComponent struct{}

func (a *apiComponent) Name() string            { return "api" }
func (a *apiComponent) Dependencies() []string  { return []string{"web", "cache"} }
func (a *apiComponent) Optional() bool          { return false }
func (a *apiComponent) Timeouts() lifecycle.Timeouts { return lifecycle.Timeouts{} }
func (a *apiComponent) Start(ctx context.Context) error { return nil }
func (a *apiComponent) Stop(ctx context.Context) error  { return nil }

func main() {
	log := loggerAdapter{telemetry.New(telemetry.Config{
		Level:       "info",
		Development: true,
		DisableJSON: true,
	})}
	metrics := obsmetrics.NewCollector()

	m := lifecycle.NewManager(lifecycle.ManagerOptions{
		Logger:                    log,
		Metrics:                   metrics,
		AttachSignalsOnFirstStart: true,
		EnableLoggerExitHook:      true,
	})
	signals := m.NewManagedSignalCoordinator(lifecycle.SignalOptions{})
	m.Register(&dbComponent{})
	m.Register(&cacheComponent{})
	m.Register(&webComponent{})
	m.Register(&apiComponent{})

	ctx := context.Background()
	order, err := m.StartupOrder()
	if err != nil {
		log.Error("dependency resolution failed", "error", err)
		return
	}
	log.Info("resolved startup order", "order", order)

	res := m.StartAll(ctx, lifecycle.StartupOptions{})
	if !res.Success {
		log.Error("startup failed", "error", res.Err)
		return
	}
	log.Success("all components started", "started", res.StartedComponents)

	health := m.CheckAllHealth(ctx)
	log.Info("aggregate health", "healthy", health.Healthy, "code", health.Code)

	msg := m.SendMessageToComponent(ctx, "web", "ping", lifecycle.MessageOptions{})
	log.Info("message result", "sent", msg.Sent, "data", msg.Data)

	time.Sleep(50 * time.Millisecond)

	shut := m.StopAll(ctx, lifecycle.DefaultShutdownOptions())
	log.Info("shutdown result", "success", shut.Success, "stopped", shut.StoppedComponents)

	// A real program calls RunBeforeExit immediately before os.Exit so the
	// logger's before-exit hook can defer exit while a signal-triggered
	// shutdown is still in flight (spec §6, testable property 6).
	if decision, ran := m.RunBeforeExit(0); ran && decision.Wait {
		log.Info("before-exit hook requested wait")
	}

	_ = signals.Detach()
}
