package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// MessageOptions configures SendMessageToComponent/BroadcastMessage.
type MessageOptions struct {
	TimeoutMS      int // 0 uses DefaultMessageTimeout
	IncludeStopped bool
	IncludeStalled bool
	// From is injected by the scoped handle; direct Manager calls leave it
	// empty (spec §4.6 "Direct manager calls use from=null").
	From string
}

// MessageResult is the outcome of a single point-to-point or broadcast
// delivery (spec §4.6).
type MessageResult struct {
	Name               string
	Sent               bool
	ComponentFound     bool
	ComponentRunning   bool
	HandlerImplemented bool
	Data               any
	Err                error
	TimedOut           bool
	Code               Code
}

// SendMessageToComponent delivers payload to name's OnMessage handler,
// racing it against a timeout (spec §4.6 Send).
func (m *Manager) SendMessageToComponent(ctx context.Context, name string, payload any, opts MessageOptions) MessageResult {
	res := MessageResult{Name: name}

	e, ok := m.reg.get(name)
	if !ok {
		res.Code = CodeNotFound
		return res
	}
	res.ComponentFound = true

	state := e.state.get()
	res.ComponentRunning = state == StateRunning
	if state == StateStopped && !opts.IncludeStopped {
		res.Code = CodeStopped
		return res
	}
	if state == StateStalled && !opts.IncludeStalled {
		res.Code = CodeStalled
		return res
	}

	handler, ok := e.component.(MessageHandler)
	if !ok {
		res.Code = CodeNoHandler
		return res
	}
	res.HandlerImplemented = true

	timeoutMS := opts.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = int(DefaultMessageTimeout / time.Millisecond)
	}
	msgCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: panicToErr(r)}
			}
		}()
		data, err := handler.OnMessage(msgCtx, payload, opts.From)
		ch <- outcome{data: data, err: err}
	}()

	select {
	case o := <-ch:
		res.Sent = true
		if o.err != nil {
			res.Err = o.err
			res.Code = CodeError
			m.events.emit(Event{Kind: EventMessageFailed, Name: name, From: opts.From, Err: o.err})
			return res
		}
		res.Data = o.data
		res.Code = CodeSent
		m.events.emit(Event{Kind: EventMessageSent, Name: name, From: opts.From})
		return res
	case <-msgCtx.Done():
		res.TimedOut = true
		res.Code = CodeTimeout
		m.events.emit(Event{Kind: EventMessageFailed, Name: name, From: opts.From, Err: ErrStopTimeout})
		go func() { <-ch }()
		return res
	}
}

// BroadcastMessage delivers payload sequentially to a target set (spec §4.6
// Broadcast): explicit ComponentNames if opts provides one, else all running
// plus any included stopped/stalled components. Results preserve target
// iteration order.
func (m *Manager) BroadcastMessage(ctx context.Context, payload any, componentNames []string, opts MessageOptions) []MessageResult {
	m.events.emit(Event{Kind: EventBroadcastStart})

	var targets []string
	if len(componentNames) > 0 {
		targets = componentNames
	} else {
		for _, e := range m.reg.all() {
			st := e.state.get()
			switch {
			case st == StateRunning:
				targets = append(targets, e.name)
			case st == StateStopped && opts.IncludeStopped:
				targets = append(targets, e.name)
			case st == StateStalled && opts.IncludeStalled:
				targets = append(targets, e.name)
			}
		}
	}

	results := make([]MessageResult, 0, len(targets))
	for _, name := range targets {
		results = append(results, m.SendMessageToComponent(ctx, name, payload, opts))
	}

	m.events.emit(Event{Kind: EventBroadcastComplete})
	return results
}

// ValueResult is the outcome of GetValue (spec §4.6 getValue).
type ValueResult struct {
	Found              bool
	Value              any
	ComponentFound     bool
	ComponentRunning   bool
	HandlerImplemented bool
	RequestedBy        string
	Code               Code
	Err                error
}

// GetValue performs a synchronous shared-value lookup against name's
// ValueProvider, if implemented (spec §4.6 getValue).
func (m *Manager) GetValue(ctx context.Context, name, key string, from string) ValueResult {
	res := ValueResult{RequestedBy: from}
	m.events.emit(Event{Kind: EventValueRequested, Name: name, From: from})

	e, ok := m.reg.get(name)
	if !ok {
		res.Code = CodeNotFound
		return res
	}
	res.ComponentFound = true

	state := e.state.get()
	res.ComponentRunning = state == StateRunning
	if state == StateStopped {
		res.Code = CodeStopped
		return res
	}
	if state == StateStalled {
		res.Code = CodeStalled
		return res
	}

	provider, ok := e.component.(ValueProvider)
	if !ok {
		res.Code = CodeNoHandler
		return res
	}
	res.HandlerImplemented = true

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = panicToErr(r)
				res.Code = CodeError
			}
		}()
		found, value := provider.GetValue(ctx, key, from)
		res.Found = found
		res.Value = value
		res.Code = CodeFound
		if !found {
			res.Code = CodeNotFound
		}
	}()

	m.events.emit(Event{Kind: EventValueReturned, Name: name, From: from})
	return res
}

func panicToErr(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("lifecycle: panic: %v", r)
}
