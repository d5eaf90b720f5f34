package session

import (
	"sync"
	"time"
)

type guardState int

const (
	guardIdle guardState = iota
	guardAttempting
)

// remediationGuard serializes webhook setup attempts. It is a two-state
// machine: idle -> attempting on tryBegin, and attempting -> idle either
// immediately (endSuccess) or after the cooldown elapses (endFailure). The
// cooldown is a deliberate throttle, not a retry schedule: at most one new
// attempt per cooldown window after a failure.
type remediationGuard struct {
	clock    Clock
	cooldown time.Duration

	mu          sync.Mutex
	state       guardState
	cancelReset func() bool
}

func newRemediationGuard(clock Clock, cooldown time.Duration) *remediationGuard {
	return &remediationGuard{clock: clock, cooldown: cooldown}
}

// tryBegin claims the guard. It returns false while an attempt is in flight
// or its failure cooldown has not elapsed.
func (g *remediationGuard) tryBegin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != guardIdle {
		return false
	}
	g.state = guardAttempting
	return true
}

func (g *remediationGuard) endSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = guardIdle
}

func (g *remediationGuard) endFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != guardAttempting {
		return
	}
	g.cancelReset = g.clock.AfterFunc(g.cooldown, func() {
		g.mu.Lock()
		g.state = guardIdle
		g.cancelReset = nil
		g.mu.Unlock()
	})
}

func (g *remediationGuard) attempting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == guardAttempting
}

// reset cancels any pending cooldown and returns to idle. Used at teardown.
func (g *remediationGuard) reset() {
	g.mu.Lock()
	cancel := g.cancelReset
	g.cancelReset = nil
	g.state = guardIdle
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
