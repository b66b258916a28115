package relay

import "sync"

// Handle is what the registry can do to a registered call: tear it down.
type Handle struct {
	Cancel func()
}

// Registry is the process-wide arena of active calls: one entry per open
// connection, inserted on connect, removed on disconnect. Entries are never
// iterated on the hot path and no call can reach another call's entry.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*registered
}

type registered struct {
	handle Handle
	once   sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*registered)}
}

// Register inserts a call and returns its unregister func. Registering an ID
// that is already present replaces (and cancels) the old entry.
func (r *Registry) Register(id string, h Handle) (unregister func()) {
	entry := &registered{handle: h}

	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = entry
	r.mu.Unlock()

	if old != nil {
		r.remove(id, old)
		if old.handle.Cancel != nil {
			old.handle.Cancel()
		}
	}

	return func() { r.remove(id, entry) }
}

func (r *Registry) remove(id string, entry *registered) {
	entry.once.Do(func() {
		r.mu.Lock()
		if r.sessions[id] == entry {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
	})
}

// Count returns the number of active calls.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CancelAll tears down every registered call. Used at process shutdown; one
// call's teardown cannot affect another's entry.
func (r *Registry) CancelAll() (canceled int) {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.sessions))
	for _, entry := range r.sessions {
		handles = append(handles, entry.handle)
	}
	r.mu.Unlock()

	for _, h := range handles {
		if h.Cancel != nil {
			h.Cancel()
			canceled++
		}
	}
	return canceled
}
