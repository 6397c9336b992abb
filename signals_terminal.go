package lifecycle

import (
	"os"

	"golang.org/x/term"
)

// rawModeState holds the terminal's prior attributes so it can be restored
// exactly once. It is not guarded by globalTerminalState.mu: Attach and
// Detach call enableRawMode/disableRawMode after releasing that lock.
var rawModeState *term.State

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func enableRawMode() error {
	state, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	rawModeState = state
	return nil
}

func disableRawMode() error {
	if rawModeState == nil {
		return nil
	}
	err := term.Restore(int(os.Stdin.Fd()), rawModeState)
	if err == nil {
		rawModeState = nil
	}
	return err
}

// keypressLoop decodes single bytes off stdin once it is a TTY, mapping
// Ctrl+C/Esc to shutdown and r/R, i/I, d/D to reload/info/debug (spec
// §4.1). Leading-edge-throttled per action.
func (c *SignalCoordinator) keypressLoop() {
	buf := make([]byte, 1)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		switch buf[0] {
		case 0x03, 0x1b: // Ctrl+C, Esc
			if c.throttledAction("shutdown") {
				c.safeDispatch(func() {
					if c.opts.OnShutdown != nil {
						c.opts.OnShutdown("SIGINT")
					}
				})
			}
		case 'r', 'R':
			if c.throttledAction("reload") {
				c.safeDispatch(func() {
					if c.opts.OnReload != nil {
						c.opts.OnReload()
					}
				})
			}
		case 'i', 'I':
			if c.throttledAction("info") {
				c.safeDispatch(func() {
					if c.opts.OnInfo != nil {
						c.opts.OnInfo()
					}
				})
			}
		case 'd', 'D':
			if c.throttledAction("debug") {
				c.safeDispatch(func() {
					if c.opts.OnDebug != nil {
						c.opts.OnDebug()
					}
				})
			}
		}
	}
}
