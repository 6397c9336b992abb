package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopAll_GracefulSuccess(t *testing.T) {
	m := newTestManager()
	m.Register(&mockComponent{name: "a", timeouts: quickTimeouts()})
	m.Register(&mockComponent{name: "b", deps: []string{"a"}, timeouts: quickTimeouts()})

	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.StopAll(context.Background(), ShutdownOptions{TimeoutMS: 1000, RetryStalled: true, HaltOnStall: true, WarningTimeoutMS: -1})
	require.True(t, res.Success)
	assert.Equal(t, []string{"b", "a"}, res.StoppedComponents)
	assert.Empty(t, res.StalledComponents)
}

func TestStopAll_ForceStopAfterGracefulTimeout(t *testing.T) {
	m := newTestManager()
	forced := make(chan struct{}, 1)
	c := &mockWithShutdownForcer{&mockComponent{
		name:     "slow-stop",
		timeouts: quickTimeouts(),
		stopFn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}}
	c.onShutdownForce = func(ctx context.Context) error {
		forced <- struct{}{}
		return nil
	}
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	// The graceful timeout is clamped up to MinShutdownGracefulTimeout (1s),
	// so the global timeout must leave room for it plus the force phase.
	res := m.StopAll(context.Background(), ShutdownOptions{TimeoutMS: 5000, RetryStalled: true, HaltOnStall: true, WarningTimeoutMS: -1})
	require.True(t, res.Success)
	assert.Contains(t, res.StoppedComponents, "slow-stop")
	select {
	case <-forced:
	case <-time.After(time.Second):
		t.Fatal("expected OnShutdownForce to be invoked")
	}
}

// Scenario 4 (spec §8): a component with no OnShutdownForce that hangs
// forever on Stop becomes stalled with phase=graceful, reason=timeout.
func TestStopAll_StallTrap(t *testing.T) {
	m := newTestManager()
	m.Register(&mockComponent{
		name: "h", timeouts: quickTimeouts(),
		stopFn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.StopAll(context.Background(), ShutdownOptions{TimeoutMS: 1000, RetryStalled: true, HaltOnStall: true, WarningTimeoutMS: -1})
	require.False(t, res.Success)
	require.Len(t, res.StalledComponents, 1)
	assert.Equal(t, "h", res.StalledComponents[0].Name)
	assert.Equal(t, StallPhaseGraceful, res.StalledComponents[0].Phase)
	assert.Equal(t, StallReasonTimeout, res.StalledComponents[0].Reason)
}

func TestStopAll_HaltOnStallFalseCollectsAll(t *testing.T) {
	m := newTestManager()
	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	m.Register(&mockComponent{name: "h1", timeouts: quickTimeouts(), stopFn: hang})
	m.Register(&mockComponent{name: "h2", timeouts: quickTimeouts(), stopFn: hang})
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	// Each hanging stop takes the clamped 1s graceful timeout, so the global
	// timeout must cover both.
	res := m.StopAll(context.Background(), ShutdownOptions{TimeoutMS: 5000, RetryStalled: true, HaltOnStall: false, WarningTimeoutMS: -1})
	require.False(t, res.Success)
	assert.Len(t, res.StalledComponents, 2)
}

func TestStopAll_RejectsConcurrentShutdown(t *testing.T) {
	m := newTestManager()
	m.Register(&mockComponent{
		name: "slow", timeouts: quickTimeouts(),
		stopFn: func(ctx context.Context) error {
			time.Sleep(150 * time.Millisecond)
			return nil
		},
	})
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	go m.StopAll(context.Background(), ShutdownOptions{TimeoutMS: 1000, RetryStalled: true, HaltOnStall: true, WarningTimeoutMS: -1})
	time.Sleep(10 * time.Millisecond)

	res := m.StopAll(context.Background(), ShutdownOptions{TimeoutMS: 1000})
	assert.Equal(t, CodeAlreadyInProgress, res.Code)
}

func TestStopAll_WarningPhaseFireAndForget(t *testing.T) {
	m := newTestManager()
	called := make(chan struct{}, 1)
	c := &mockWithShutdownWarner{&mockComponent{name: "a", timeouts: quickTimeouts()}}
	c.onShutdownWarn = func(ctx context.Context) error {
		called <- struct{}{}
		return nil
	}
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.StopAll(context.Background(), ShutdownOptions{TimeoutMS: 1000, RetryStalled: true, HaltOnStall: true, WarningTimeoutMS: 0})
	require.True(t, res.Success)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected OnShutdownWarning to fire even in fire-and-forget mode")
	}
}

func TestStopAll_WarningHandlerErrorDoesNotBlockShutdown(t *testing.T) {
	m := newTestManager()
	c := &mockWithShutdownWarner{&mockComponent{name: "a", timeouts: quickTimeouts()}}
	c.onShutdownWarn = func(ctx context.Context) error { return errors.New("warn failed") }
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.StopAll(context.Background(), ShutdownOptions{TimeoutMS: 1000, RetryStalled: true, HaltOnStall: true, WarningTimeoutMS: 50})
	assert.True(t, res.Success)
}
