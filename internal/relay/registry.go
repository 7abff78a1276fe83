package relay

import (
	"sort"
	"sync"
)

// Registry maps user identities to their single active connection.
type Registry struct {
	mu     sync.Mutex
	byUser map[string]Conn   // user -> current connection
	byConn map[string]string // connection id -> announced user
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Conn),
		byConn: make(map[string]string),
	}
}

// Announce binds userID to conn. A different connection previously bound to
// userID is returned after being closed; callers get nil when nothing was
// superseded. Re-announcing the same pair is a no-op.
func (r *Registry) Announce(conn Conn, userID string, reason string) Conn {
	superseded := r.bind(conn, userID)
	if superseded != nil {
		_ = superseded.Close(reason)
	}
	return superseded
}

func (r *Registry) bind(conn Conn, userID string) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection carries one identity; switching identity releases the old one.
	if prevUser, ok := r.byConn[conn.ID()]; ok && prevUser != userID {
		if current, ok := r.byUser[prevUser]; ok && current.ID() == conn.ID() {
			delete(r.byUser, prevUser)
		}
	}

	var superseded Conn
	if current, ok := r.byUser[userID]; ok && current.ID() != conn.ID() {
		superseded = current
		// Dropping the reverse entry makes the superseded connection's own
		// closure notification a no-op and guarantees a single Close call.
		delete(r.byConn, current.ID())
	}

	r.byUser[userID] = conn
	r.byConn[conn.ID()] = userID
	return superseded
}

// Resolve returns the live connection for userID.
func (r *Registry) Resolve(userID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byUser[userID]
	return conn, ok
}

// Remove forgets conn. The user entry is only dropped when it still points
// at this exact connection, so a late closure of a replaced connection never
// evicts its successor. It reports the identity that was released, if any.
func (r *Registry) Remove(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	delete(r.byConn, conn.ID())

	current, ok := r.byUser[userID]
	if !ok || current.ID() != conn.ID() {
		return "", false
	}
	delete(r.byUser, userID)
	return userID, true
}

// UserOf returns the identity announced on conn.
func (r *Registry) UserOf(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[conn.ID()]
	return userID, ok
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// Online lists the identities with a live connection, sorted.
func (r *Registry) Online() []string {
	r.mu.Lock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	r.mu.Unlock()

	sort.Strings(users)
	return users
}

// CloseAll empties the registry and closes every connection it held.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.byUser))
	for _, conn := range r.byUser {
		conns = append(conns, conn)
	}
	r.byUser = make(map[string]Conn)
	r.byConn = make(map[string]string)
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(reason)
	}
	return len(conns)
}
