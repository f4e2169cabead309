package agent

import "sync"

// Hub fans out state snapshots to UI subscribers, keyed by target id.
// Slow subscribers drop snapshots rather than stall the engine; the next
// snapshot carries the full state anyway.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Snapshot]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Snapshot]struct{}{}}
}

func (h *Hub) Subscribe(targetID string, buf int) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, buf)
	h.mu.Lock()
	if _, ok := h.subs[targetID]; !ok {
		h.subs[targetID] = map[chan Snapshot]struct{}{}
	}
	h.subs[targetID][ch] = struct{}{}
	h.mu.Unlock()

	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if targetSubs, ok := h.subs[targetID]; ok {
			delete(targetSubs, ch)
			close(ch)
			if len(targetSubs) == 0 {
				delete(h.subs, targetID)
			}
		}
	}
	return ch, unsub
}

func (h *Hub) Publish(snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[snap.TargetID] {
		select {
		case ch <- snap:
		default:
		}
	}
}
