package tcpserver

import "sort"

// Registry maps connection ids to live connections. It belongs to the loop
// and is not safe for concurrent use.
type Registry struct {
	conns map[string]*Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Add registers c. It fails with ErrDuplicateConnection when the id is taken.
func (r *Registry) Add(c *Conn) error {
	if _, ok := r.conns[c.id]; ok {
		return ErrDuplicateConnection
	}
	r.conns[c.id] = c
	return nil
}

// Remove drops id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (*Conn, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// IDs returns a sorted snapshot of the registered ids. Callers iterate the
// snapshot so the registry can change underneath them.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) reset() {
	r.conns = make(map[string]*Conn)
}
