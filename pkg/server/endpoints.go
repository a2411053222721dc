package server

import (
	"context"
	"net"
	"sync"
	"time"
)

type endpoint struct {
	addr     *net.UDPAddr
	lastSeen time.Time
}

// EndpointTable correlates live sessions with the UDP address their voice
// datagrams last came from. Entries expire after ttl without traffic.
type EndpointTable struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uint32]endpoint // sessionID -> endpoint
}

// NewEndpointTable creates an empty table.
func NewEndpointTable(ttl time.Duration) *EndpointTable {
	return &EndpointTable{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uint32]endpoint),
	}
}

// Touch records addr as the session's endpoint and refreshes its expiry.
// It reports whether the address differs from the previous one.
func (t *EndpointTable) Touch(sessionID uint32, addr *net.UDPAddr) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.entries[sessionID]
	changed = !ok || !sameAddr(prev.addr, addr)
	if changed {
		// Copy so the caller may reuse addr.
		cp := *addr
		cp.IP = append(net.IP(nil), addr.IP...)
		prev.addr = &cp
	}
	prev.lastSeen = t.now()
	t.entries[sessionID] = prev
	return changed
}

// Lookup returns the session's endpoint if it has not expired.
func (t *EndpointTable) Lookup(sessionID uint32) (*net.UDPAddr, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[sessionID]
	if !ok || t.expired(e) {
		return nil, false
	}
	return e.addr, true
}

// Remove forgets a session's endpoint.
func (t *EndpointTable) Remove(sessionID uint32) {
	t.mu.Lock()
	delete(t.entries, sessionID)
	t.mu.Unlock()
}

// Len returns the number of entries, expired ones included until swept.
func (t *EndpointTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Sweep deletes expired entries and returns how many were removed.
func (t *EndpointTable) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, e := range t.entries {
		if t.expired(e) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper sweeps every ttl/2 until ctx is cancelled.
func (t *EndpointTable) StartSweeper(ctx context.Context, onSweep func(removed int)) {
	interval := t.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := t.Sweep(); n > 0 && onSweep != nil {
					onSweep(n)
				}
			}
		}
	}()
}

func (t *EndpointTable) expired(e endpoint) bool {
	return t.ttl > 0 && t.now().Sub(e.lastSeen) > t.ttl
}

func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port && a.IP.Equal(b.IP) && a.Zone == b.Zone
}
