package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageToComponent_NotFound(t *testing.T) {
	m := newTestManager()
	res := m.SendMessageToComponent(context.Background(), "ghost", nil, MessageOptions{})
	assert.Equal(t, CodeNotFound, res.Code)
	assert.False(t, res.ComponentFound)
}

func TestSendMessageToComponent_NoHandler(t *testing.T) {
	m := newTestManager()
	m.Register(&mockComponent{name: "a", timeouts: quickTimeouts()})
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.SendMessageToComponent(context.Background(), "a", "ping", MessageOptions{})
	assert.Equal(t, CodeNoHandler, res.Code)
	assert.True(t, res.ComponentFound)
	assert.True(t, res.ComponentRunning)
}

func TestSendMessageToComponent_SuccessAndFromAttribution(t *testing.T) {
	m := newTestManager()
	var gotFrom string
	c := &mockWithMessageHandler{&mockComponent{name: "a", timeouts: quickTimeouts()}}
	c.onMessage = func(ctx context.Context, payload any, from string) (any, error) {
		gotFrom = from
		return "pong", nil
	}
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.SendMessageToComponent(context.Background(), "a", "ping", MessageOptions{From: "caller"})
	require.True(t, res.Sent)
	assert.Equal(t, CodeSent, res.Code)
	assert.Equal(t, "pong", res.Data)
	assert.Equal(t, "caller", gotFrom)
}

func TestSendMessageToComponent_HandlerError(t *testing.T) {
	m := newTestManager()
	c := &mockWithMessageHandler{&mockComponent{name: "a", timeouts: quickTimeouts()}}
	c.onMessage = func(ctx context.Context, payload any, from string) (any, error) {
		return nil, errors.New("handler blew up")
	}
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.SendMessageToComponent(context.Background(), "a", "ping", MessageOptions{})
	assert.Equal(t, CodeError, res.Code)
	assert.Error(t, res.Err)
}

func TestSendMessageToComponent_Timeout(t *testing.T) {
	m := newTestManager()
	c := &mockWithMessageHandler{&mockComponent{name: "a", timeouts: quickTimeouts()}}
	c.onMessage = func(ctx context.Context, payload any, from string) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.SendMessageToComponent(context.Background(), "a", "ping", MessageOptions{TimeoutMS: 20})
	assert.True(t, res.TimedOut)
	assert.Equal(t, CodeTimeout, res.Code)
}

func TestSendMessageToComponent_StoppedGating(t *testing.T) {
	m := newTestManager()
	c := &mockWithMessageHandler{&mockComponent{name: "a", timeouts: quickTimeouts()}}
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)
	require.True(t, m.StopAll(context.Background(), DefaultShutdownOptions()).Success)

	res := m.SendMessageToComponent(context.Background(), "a", "ping", MessageOptions{})
	assert.Equal(t, CodeStopped, res.Code)

	res = m.SendMessageToComponent(context.Background(), "a", "ping", MessageOptions{IncludeStopped: true})
	assert.Equal(t, CodeSent, res.Code)
}

func TestBroadcastMessage_DefaultTargetsRunningOnly(t *testing.T) {
	m := newTestManager()
	var received []string
	mk := func(n string) Component {
		c := &mockWithMessageHandler{&mockComponent{name: n, timeouts: quickTimeouts()}}
		c.onMessage = func(ctx context.Context, payload any, from string) (any, error) {
			received = append(received, n)
			return nil, nil
		}
		return c
	}
	m.Register(mk("a"))
	m.Register(mk("b"))
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	results := m.BroadcastMessage(context.Background(), "hi", nil, MessageOptions{})
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, received)
}

func TestBroadcastMessage_ExplicitTargets(t *testing.T) {
	m := newTestManager()
	m.Register(&mockWithMessageHandler{&mockComponent{name: "a", timeouts: quickTimeouts()}})
	m.Register(&mockWithMessageHandler{&mockComponent{name: "b", timeouts: quickTimeouts()}})
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	results := m.BroadcastMessage(context.Background(), "hi", []string{"b"}, MessageOptions{})
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Name)
}

func TestGetValue_FoundAndNotFound(t *testing.T) {
	m := newTestManager()
	c := &mockWithValueProvider{&mockComponent{name: "cfg", timeouts: quickTimeouts()}}
	c.getValue = func(ctx context.Context, key, from string) (bool, any) {
		if key == "port" {
			return true, 8080
		}
		return false, nil
	}
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.GetValue(context.Background(), "cfg", "port", "caller")
	require.True(t, res.Found)
	assert.Equal(t, 8080, res.Value)
	assert.Equal(t, "caller", res.RequestedBy)

	res = m.GetValue(context.Background(), "cfg", "missing", "caller")
	assert.False(t, res.Found)
	assert.Equal(t, CodeNotFound, res.Code)
}

func TestGetValue_NoHandler(t *testing.T) {
	m := newTestManager()
	m.Register(&mockComponent{name: "a", timeouts: quickTimeouts()})
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.GetValue(context.Background(), "a", "key", "")
	assert.Equal(t, CodeNoHandler, res.Code)
}

func TestGetValue_PanicRecovered(t *testing.T) {
	m := newTestManager()
	c := &mockWithValueProvider{&mockComponent{name: "a", timeouts: quickTimeouts()}}
	c.getValue = func(ctx context.Context, key, from string) (bool, any) {
		panic("boom")
	}
	m.Register(c)
	require.True(t, m.StartAll(context.Background(), StartupOptions{}).Success)

	res := m.GetValue(context.Background(), "a", "key", "")
	assert.Equal(t, CodeError, res.Code)
	assert.Error(t, res.Err)
}

// Component satisfies lifecycle.Component; used above for compile-time clarity
// in mk() without importing unsafe generics.
var _ Component = (*mockComponent)(nil)
