package realtime

import (
	"sync"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	err    error

	// onSend runs before each delivery is recorded.
	onSend func(Event)
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(evt Event) error {
	if f.onSend != nil {
		f.onSend(evt)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeConn) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

func (f *fakeConn) received(t EventType) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Event
	for _, e := range f.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeConn) all() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Event(nil), f.events...)
}
