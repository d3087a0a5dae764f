package chat

import (
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Registry tracks live connections and the Online Set: the presence names
// bound to at least one connection. Multiple connections may share a name.
type Registry struct {
	mu        sync.RWMutex
	queueSize int
	conns     map[string]*Connection
	names     map[string]int
}

func NewRegistry(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Registry{
		queueSize: queueSize,
		conns:     make(map[string]*Connection),
		names:     make(map[string]int),
	}
}

// Register adds an unbound connection with its own bounded outbound queue.
func (r *Registry) Register(id string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return nil, ErrDuplicateConnection
	}
	conn := newConnection(id, r.queueSize)
	r.conns[id] = conn
	return conn, nil
}

// Bind attaches a presence name to a connection. joined is true when the
// name was not online before. Binding the same name again is a no-op; a
// different name on an already bound connection is rejected.
func (r *Registry) Bind(id string, userID int, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return false, ErrUnknownConnection
	}
	if conn.name != "" {
		if conn.name == name {
			return false, nil
		}
		return false, ErrAlreadyJoined
	}

	conn.name = name
	conn.userID = userID
	r.names[name]++
	return r.names[name] == 1, nil
}

// Unregister removes a connection and closes its outbound queue. left is
// set when it was the last connection bound to its name.
func (r *Registry) Unregister(id string) (name string, left bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return "", false, ErrUnknownConnection
	}
	delete(r.conns, id)
	conn.close()

	if conn.name == "" {
		return "", false, nil
	}
	r.names[conn.name]--
	if r.names[conn.name] > 0 {
		return "", false, nil
	}
	delete(r.names, conn.name)
	return conn.name, true, nil
}

// Snapshot returns the Online Set in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.names)
	sort.Strings(names)
	return names
}

func (r *Registry) Lookup(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	return conn, ok
}

// Connections returns the connections registered at call time.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.conns)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// closeAll drops every connection; used when the engine stops.
func (r *Registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, conn := range r.conns {
		conn.close()
		delete(r.conns, id)
	}
	clear(r.names)
}
