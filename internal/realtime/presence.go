package realtime

import (
	"sync"

	"github.com/samber/lo"

	"github.com/tailmate/chat-service/internal/domain"
)

// Presence tracks which identities are connected and through which connections.
// The connection set of an identity is its personal channel.
type Presence struct {
	mu       sync.RWMutex
	channels map[domain.Identity]map[Conn]struct{}
	owners   map[Conn]domain.Identity
}

func NewPresence() *Presence {
	return &Presence{
		channels: make(map[domain.Identity]map[Conn]struct{}),
		owners:   make(map[Conn]domain.Identity),
	}
}

// Register is idempotent. A connection re-registered under another identity is moved.
// It reports whether the connection was added.
func (p *Presence) Register(identity domain.Identity, c Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.owners[c]; ok {
		if prev == identity {
			return false
		}
		p.removeLocked(prev, c)
	}

	set, ok := p.channels[identity]
	if !ok {
		set = make(map[Conn]struct{})
		p.channels[identity] = set
	}
	set[c] = struct{}{}
	p.owners[c] = identity
	return true
}

// Deregister removes the connection; unknown connections are ignored.
func (p *Presence) Deregister(c Conn) (domain.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	identity, ok := p.owners[c]
	if !ok {
		return "", false
	}
	p.removeLocked(identity, c)
	return identity, true
}

func (p *Presence) removeLocked(identity domain.Identity, c Conn) {
	delete(p.owners, c)
	if set, ok := p.channels[identity]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(p.channels, identity)
		}
	}
}

// ConnectionsFor returns a snapshot of the identity's live connections.
func (p *Presence) ConnectionsFor(identity domain.Identity) []Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return lo.Keys(p.channels[identity])
}

func (p *Presence) IdentityOf(c Conn) (domain.Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	identity, ok := p.owners[c]
	return identity, ok
}

func (p *Presence) Online(identity domain.Identity) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.channels[identity]) > 0
}

// Len returns the number of registered connections.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.owners)
}
