package reference

import (
	"slices"
	"sync"
)

// Listener receives satisfaction changes of a reference. Notify runs on the
// goroutine that drove the evaluation and must not block; an error or panic
// is logged and does not stop delivery to other listeners.
type Listener interface {
	Notify(n Notification) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(n Notification) error

func (f ListenerFunc) Notify(n Notification) error { return f(n) }

// ListenerToken identifies a registered listener. Zero is never issued.
type ListenerToken uint64

type registeredListener struct {
	token    ListenerToken
	listener Listener
	// since is the generation the registration replay reflects. Older
	// notifications are not delivered to this listener.
	since    int64
	delivery *delivery
}

// delivery orders the notifications of one listener. While its registration
// replay runs, notifications from evaluations are held back in pending.
type delivery struct {
	mu        sync.Mutex
	replaying bool
	pending   []Notification
}

// hold queues n if the replay is still running and reports whether it did.
func (d *delivery) hold(n Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.replaying {
		d.pending = append(d.pending, n)
	}
	return d.replaying
}

// next pops a held notification, or ends the replay when none is left.
func (d *delivery) next() (Notification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		d.replaying = false
		return Notification{}, false
	}
	n := d.pending[0]
	d.pending = d.pending[1:]
	return n, true
}

// listenerRegistry keeps listeners in registration order.
type listenerRegistry struct {
	mu      sync.RWMutex
	next    ListenerToken
	entries []registeredListener
}

// add registers l in replay mode at generation since.
func (r *listenerRegistry) add(l Listener, since int64) registeredListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	e := registeredListener{
		token:    r.next,
		listener: l,
		since:    since,
		delivery: &delivery{replaying: true},
	}
	r.entries = append(r.entries, e)
	return e
}

func (r *listenerRegistry) remove(token ListenerToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.entries, func(e registeredListener) bool { return e.token == token })
	if i < 0 {
		return false
	}
	r.entries = slices.Delete(r.entries, i, i+1)
	return true
}

func (r *listenerRegistry) snapshot() []registeredListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

func (r *listenerRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *listenerRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
