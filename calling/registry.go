package calling

import "sync"

// A Registry holds the at-most-one active call session. All mutation happens
// on the coordinator's run loop; reads are safe from any goroutine.
type Registry struct {
	mu      sync.Mutex
	current *callSession
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the active call, or nil when idle.
func (r *Registry) Current() *Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	return r.current.call
}

func (r *Registry) session() *callSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// isCurrent reports whether the given session still occupies the slot.
// Operations resuming after a suspension re-check this before acting.
func (r *Registry) isCurrent(sess *callSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current == sess
}

func (r *Registry) setSession(sess *callSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = sess
}

// clear vacates the slot if sess occupies it, reporting whether it did.
func (r *Registry) clear(sess *callSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != sess {
		return false
	}
	r.current = nil
	return true
}
