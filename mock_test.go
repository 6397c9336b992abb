package lifecycle

import (
	"context"
	"time"
)

// mockComponent is a configurable Component used across the test suite.
// Every optional behavior is a nil-able func field so a test only wires up
// the capabilities it needs (mirrors the teacher's mockComponent/mockLogger
// pattern in lifecycle_test.go).
type mockComponent struct {
	name     string
	deps     []string
	optional bool
	timeouts Timeouts

	startFn func(ctx context.Context) error
	stopFn  func(ctx context.Context) error

	onStartupAborted func()
	onStopAborted    func()
	onShutdownWarn   func(ctx context.Context) error
	onShutdownForce  func(ctx context.Context) error
	onForceAborted   func()
	onReload         func(ctx context.Context) error
	onInfo           func(ctx context.Context) error
	onDebug          func(ctx context.Context) error
	healthCheck      func(ctx context.Context) (HealthStatus, error)
	onMessage        func(ctx context.Context, payload any, from string) (any, error)
	getValue         func(ctx context.Context, key, from string) (bool, any)
}

func (m *mockComponent) Name() string           { return m.name }
func (m *mockComponent) Dependencies() []string { return m.deps }
func (m *mockComponent) Optional() bool         { return m.optional }
func (m *mockComponent) Timeouts() Timeouts     { return m.timeouts }

func (m *mockComponent) Start(ctx context.Context) error {
	if m.startFn != nil {
		return m.startFn(ctx)
	}
	return nil
}

func (m *mockComponent) Stop(ctx context.Context) error {
	if m.stopFn != nil {
		return m.stopFn(ctx)
	}
	return nil
}

// A bare *mockComponent implements none of the optional interfaces. Each
// capability is added by one of the wrapper types below, which embed
// *mockComponent; a test opts in by wrapping, and each wrapper method
// delegates to its nil-able field (a no-op default when the field is nil).

type mockWithStartupAborter struct{ *mockComponent }

func (m mockWithStartupAborter) OnStartupAborted() {
	if m.onStartupAborted != nil {
		m.onStartupAborted()
	}
}

type mockWithStopAborter struct{ *mockComponent }

func (m mockWithStopAborter) OnStopAborted() {
	if m.onStopAborted != nil {
		m.onStopAborted()
	}
}

type mockWithShutdownWarner struct{ *mockComponent }

func (m mockWithShutdownWarner) OnShutdownWarning(ctx context.Context) error {
	if m.onShutdownWarn != nil {
		return m.onShutdownWarn(ctx)
	}
	return nil
}

type mockWithShutdownForcer struct{ *mockComponent }

func (m mockWithShutdownForcer) OnShutdownForce(ctx context.Context) error {
	if m.onShutdownForce != nil {
		return m.onShutdownForce(ctx)
	}
	return nil
}

type mockWithHealthChecker struct{ *mockComponent }

func (m mockWithHealthChecker) HealthCheck(ctx context.Context) (HealthStatus, error) {
	if m.healthCheck != nil {
		return m.healthCheck(ctx)
	}
	return HealthStatus{Healthy: true}, nil
}

type mockWithMessageHandler struct{ *mockComponent }

func (m mockWithMessageHandler) OnMessage(ctx context.Context, payload any, from string) (any, error) {
	if m.onMessage != nil {
		return m.onMessage(ctx, payload, from)
	}
	return nil, nil
}

type mockWithValueProvider struct{ *mockComponent }

func (m mockWithValueProvider) GetValue(ctx context.Context, key, from string) (bool, any) {
	if m.getValue != nil {
		return m.getValue(ctx, key, from)
	}
	return false, nil
}

func quickTimeouts() Timeouts {
	return Timeouts{
		Startup:          200 * time.Millisecond,
		ShutdownGraceful: 50 * time.Millisecond,
		ShutdownForce:    50 * time.Millisecond,
		HealthCheck:      50 * time.Millisecond,
		Signal:           50 * time.Millisecond,
	}
}
