package sync

import (
	gosync "sync"

	"go.uber.org/zap"
)

// Lifecycle is the host's foreground state.
type Lifecycle string

const (
	Active     Lifecycle = "active"
	Background Lifecycle = "background"
)

// ParseLifecycle maps a lifecycle name to its value.
func ParseLifecycle(s string) (Lifecycle, bool) {
	switch Lifecycle(s) {
	case Active:
		return Active, true
	case Background:
		return Background, true
	}
	return "", false
}

// Runner is a loop the gate can start and stop.
type Runner interface {
	Name() string
	Start() bool
	Stop()
	Running() bool
}

// Gate starts its loops while the host is in the foreground with a valid
// credential and stops them otherwise.
type Gate struct {
	mu         gosync.Mutex
	lifecycle  Lifecycle
	credential bool
	runners    map[string]Runner
	logger     *zap.Logger
}

// NewGate returns a closed gate: backgrounded, no credential.
func NewGate(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		lifecycle: Background,
		runners:   make(map[string]Runner),
		logger:    logger,
	}
}

// Open reports whether loops should be running.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open()
}

func (g *Gate) open() bool {
	return g.lifecycle == Active && g.credential
}

// Lifecycle returns the last lifecycle event.
func (g *Gate) Lifecycle() Lifecycle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lifecycle
}

// SetLifecycle records a lifecycle event.
func (g *Gate) SetLifecycle(l Lifecycle) {
	g.update(func() { g.lifecycle = l })
}

// SetCredential records whether a session credential is present.
func (g *Gate) SetCredential(present bool) {
	g.update(func() { g.credential = present })
}

// Attach registers r under its name, replacing and stopping any runner with
// the same name. r is started when the gate is open.
func (g *Gate) Attach(r Runner) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.runners[r.Name()]; ok && old != r {
		old.Stop()
	}
	g.runners[r.Name()] = r
	if g.open() && !r.Running() {
		r.Start()
	}
}

// Detach stops and forgets the runner registered as name.
func (g *Gate) Detach(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.runners[name]; ok {
		r.Stop()
		delete(g.runners, name)
	}
}

// Close stops every attached runner without changing the recorded inputs.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range g.runners {
		r.Stop()
	}
}

// update applies mutate and starts or stops runners on an edge. Runners are
// driven under mu so concurrent events cannot reorder start and stop.
func (g *Gate) update(mutate func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	was := g.open()
	mutate()
	now := g.open()
	if was == now {
		return
	}

	g.logger.Debug("gate changed", zap.Bool("open", now), zap.Int("loops", len(g.runners)))
	for _, r := range g.runners {
		if now {
			if !r.Running() {
				r.Start()
			}
		} else {
			r.Stop()
		}
	}
}
