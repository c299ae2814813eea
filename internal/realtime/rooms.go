package realtime

import (
	"sync"

	"github.com/samber/lo"

	"github.com/tailmate/chat-service/internal/domain"
)

// Directory maps room keys to subscribed connections.
// A room exists while it has at least one subscriber.
type Directory struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomKey]map[Conn]struct{}
	joined map[Conn]map[domain.RoomKey]struct{} // reverse index for LeaveAll
}

func NewDirectory() *Directory {
	return &Directory{
		rooms:  make(map[domain.RoomKey]map[Conn]struct{}),
		joined: make(map[Conn]map[domain.RoomKey]struct{}),
	}
}

// Join subscribes c to the room, creating it on first join. It reports whether c was added.
func (d *Directory) Join(key domain.RoomKey, c Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rs, ok := d.rooms[key]
	if !ok {
		rs = make(map[Conn]struct{})
		d.rooms[key] = rs
	}
	if _, ok := rs[c]; ok {
		return false
	}
	rs[c] = struct{}{}

	js, ok := d.joined[c]
	if !ok {
		js = make(map[domain.RoomKey]struct{})
		d.joined[c] = js
	}
	js[key] = struct{}{}
	return true
}

// Leave unsubscribes c; the room is dropped once empty.
func (d *Directory) Leave(key domain.RoomKey, c Conn) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.leaveLocked(key, c)
}

// LeaveAll removes c from every room it joined and returns those rooms.
func (d *Directory) LeaveAll(c Conn) []domain.RoomKey {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := lo.Keys(d.joined[c])
	for _, key := range keys {
		d.leaveLocked(key, c)
	}
	return keys
}

func (d *Directory) leaveLocked(key domain.RoomKey, c Conn) bool {
	rs, ok := d.rooms[key]
	if !ok {
		return false
	}
	if _, ok := rs[c]; !ok {
		return false
	}
	delete(rs, c)
	if len(rs) == 0 {
		delete(d.rooms, key)
	}
	if js, ok := d.joined[c]; ok {
		delete(js, key)
		if len(js) == 0 {
			delete(d.joined, c)
		}
	}
	return true
}

// SubscribersOf returns a snapshot of the room's subscribers.
func (d *Directory) SubscribersOf(key domain.RoomKey) []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return lo.Keys(d.rooms[key])
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.rooms)
}
