package agent

import (
	"context"
	"sync"
	"time"
)

// Manager hands out one controller per database target, creating them on
// first use. Controllers are independent: each owns its own run, stream and
// state machine.
type Manager struct {
	svc        AgentService
	hub        *Hub
	audit      AuditSink
	cmdTimeout time.Duration

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewManager(svc AgentService, hub *Hub, audit AuditSink, cmdTimeout time.Duration) *Manager {
	if hub == nil {
		hub = NewHub()
	}
	return &Manager{
		svc:         svc,
		hub:         hub,
		audit:       audit,
		cmdTimeout:  cmdTimeout,
		controllers: map[string]*Controller{},
	}
}

func (m *Manager) Hub() *Hub {
	return m.hub
}

func (m *Manager) Controller(targetID string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.controllers[targetID]; ok {
		return c
	}
	c := NewController(targetID, m.svc, m.hub, m.audit, m.cmdTimeout)
	m.controllers[targetID] = c
	return c
}

func (m *Manager) Targets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.controllers))
	for id := range m.controllers {
		out = append(out, id)
	}
	return out
}

// Shutdown stops every active run. Stop is local-first and never blocks, so
// the ctx only bounds the best-effort remote notifications already in flight.
func (m *Manager) Shutdown(_ context.Context) error {
	m.mu.Lock()
	all := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		all = append(all, c)
	}
	m.mu.Unlock()
	for _, c := range all {
		c.Stop()
	}
	return nil
}
