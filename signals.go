package lifecycle

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownCallback receives the triggering method name (a signal name or
// "manual").
type ShutdownCallback func(method string)

// SignalOptions configures a SignalCoordinator.
type SignalOptions struct {
	OnShutdown ShutdownCallback
	OnReload   func()
	OnInfo     func()
	OnDebug    func()
	// KeypressThrottle is the leading-edge throttle window for TTY keypress
	// actions. A zero value selects the 200ms default (zero does not disable
	// throttling); a negative value disables it.
	KeypressThrottle time.Duration
	// ReportError receives panics recovered from any of the callbacks above
	// (spec §4.1 "safe handler").
	ReportError func(error)
}

// sharedTerminalState is the process-wide record described in spec §4.1,
// keyed by a single unexported package variable. Go has no module
// duplication across bundlers the way a JS runtime does, so one
// package-level variable already satisfies "a stable well-known symbol in
// a global registry, surviving duplication".
type sharedTerminalState struct {
	mu                       sync.Mutex
	keypressEventsEmitted    bool
	attachedInstances        map[string]bool
	rawModeOwner             string
	rawModeEnabledByManager  bool
}

var globalTerminalState = &sharedTerminalState{
	attachedInstances: make(map[string]bool),
}

var instanceCounter struct {
	mu  sync.Mutex
	n   int
}

func nextInstanceID() string {
	instanceCounter.mu.Lock()
	defer instanceCounter.mu.Unlock()
	instanceCounter.n++
	return fmt.Sprintf("signal-coordinator-%d", instanceCounter.n)
}

// SignalCoordinator maps OS signals and TTY keypresses to the four logical
// lifecycle events (spec §4.1). Multiple instances may coexist in one
// process; they share rawMode/stdin ownership through globalTerminalState
// rather than fighting over it.
type SignalCoordinator struct {
	id   string
	opts SignalOptions

	mu       sync.Mutex
	attached bool
	sigCh    chan os.Signal
	stopCh   chan struct{}

	lastAction map[string]time.Time
}

// NewSignalCoordinator constructs a coordinator. Call Attach to begin
// receiving signals/keypresses, and Detach to release them.
func NewSignalCoordinator(opts SignalOptions) *SignalCoordinator {
	if opts.KeypressThrottle == 0 {
		opts.KeypressThrottle = 200 * time.Millisecond
	}
	return &SignalCoordinator{
		id:         nextInstanceID(),
		opts:       opts,
		lastAction: make(map[string]time.Time),
	}
}

// Attach is the idempotent attach protocol of spec §4.1.
func (c *SignalCoordinator) Attach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return nil
	}

	c.sigCh = make(chan os.Signal, 4)
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTRAP, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	c.stopCh = make(chan struct{})
	go c.signalLoop()

	globalTerminalState.mu.Lock()
	isTTY := stdinIsTerminal()
	// Keypress decoding is enabled once, process-wide, guarded by this
	// one-shot flag: only the instance observing the false->true transition
	// may start reading stdin, or every coexisting instance would race to
	// read the same bytes (spec §4.1 step 2 "enable keypress decoding once").
	startKeypressLoop := isTTY && !globalTerminalState.keypressEventsEmitted
	if startKeypressLoop {
		globalTerminalState.keypressEventsEmitted = true
	}
	// add-then-check: insert before observing size, per spec §4.1 step 2.
	globalTerminalState.attachedInstances[c.id] = true
	first := len(globalTerminalState.attachedInstances) == 1
	globalTerminalState.mu.Unlock()

	if isTTY && first {
		if err := enableRawMode(); err != nil {
			c.unwindAttach()
			return fmt.Errorf("lifecycle: enable raw mode: %w", err)
		}
		globalTerminalState.mu.Lock()
		globalTerminalState.rawModeOwner = c.id
		globalTerminalState.rawModeEnabledByManager = true
		globalTerminalState.mu.Unlock()
	}
	if startKeypressLoop {
		go c.keypressLoop()
	}

	c.attached = true
	return nil
}

// unwindAttach cleans up signal registration and membership after a
// mid-attach failure (spec §4.1 step 1/3 "unwind everything already
// registered").
func (c *SignalCoordinator) unwindAttach() {
	signal.Stop(c.sigCh)
	close(c.stopCh)
	globalTerminalState.mu.Lock()
	delete(globalTerminalState.attachedInstances, c.id)
	globalTerminalState.mu.Unlock()
}

// Detach is the idempotent detach protocol of spec §4.1.
func (c *SignalCoordinator) Detach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return nil
	}

	signal.Stop(c.sigCh)
	close(c.stopCh)

	globalTerminalState.mu.Lock()
	delete(globalTerminalState.attachedInstances, c.id) // remove-then-check
	remaining := len(globalTerminalState.attachedInstances)
	wasOwner := globalTerminalState.rawModeOwner == c.id
	if remaining > 0 && wasOwner {
		for other := range globalTerminalState.attachedInstances {
			globalTerminalState.rawModeOwner = other
			break
		}
	}
	shouldDisable := remaining == 0 && globalTerminalState.rawModeEnabledByManager && wasOwner
	globalTerminalState.mu.Unlock()

	if shouldDisable {
		if err := disableRawMode(); err != nil {
			// Leave ownership set for a later retry; the terminal will be
			// restored on process exit at the latest (spec §4.1 step 3).
			c.attached = false
			return fmt.Errorf("lifecycle: disable raw mode: %w", err)
		}
		globalTerminalState.mu.Lock()
		globalTerminalState.rawModeOwner = ""
		globalTerminalState.rawModeEnabledByManager = false
		globalTerminalState.mu.Unlock()
	}

	c.attached = false
	return nil
}

func (c *SignalCoordinator) signalLoop() {
	for {
		select {
		case sig, ok := <-c.sigCh:
			if !ok {
				return
			}
			c.handleSignal(sig)
		case <-c.stopCh:
			return
		}
	}
}

func (c *SignalCoordinator) handleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM, syscall.SIGTRAP:
		c.safeDispatch(func() {
			if c.opts.OnShutdown != nil {
				c.opts.OnShutdown(sig.String())
			}
		})
	case syscall.SIGHUP:
		c.safeDispatch(func() {
			if c.opts.OnReload != nil {
				c.opts.OnReload()
			}
		})
	case syscall.SIGUSR1:
		c.safeDispatch(func() {
			if c.opts.OnInfo != nil {
				c.opts.OnInfo()
			}
		})
	case syscall.SIGUSR2:
		c.safeDispatch(func() {
			if c.opts.OnDebug != nil {
				c.opts.OnDebug()
			}
		})
	}
}

// throttledAction reports whether action should fire now under the
// leading-edge keypress throttle (spec §4.1 "Keypress throttling").
func (c *SignalCoordinator) throttledAction(action string) bool {
	if c.opts.KeypressThrottle <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastAction[action]
	now := time.Now()
	if ok && now.Sub(last) < c.opts.KeypressThrottle {
		return false
	}
	c.lastAction[action] = now
	return true
}

// safeDispatch invokes fn, recovering any panic and routing it to
// ReportError so a misbehaving callback never corrupts coordinator state
// (spec §4.1 "safe handler").
func (c *SignalCoordinator) safeDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if c.opts.ReportError != nil {
				c.opts.ReportError(fmt.Errorf("lifecycle: signal callback panicked: %v", r))
			}
		}
	}()
	fn()
}
