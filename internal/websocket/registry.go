package websocket

import (
	"sync"

	"connected/internal/metrics"
	"connected/pkg/interfaces"
)

// Registry tracks realtime subscribers by connection and by conversation
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic, every
// Register is paired with an Unregister when the socket closes
type Registry struct {
	// TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy fan-out
	mu sync.RWMutex

	// connectionID -> Connection
	connections map[string]interfaces.Connection

	// conversationID -> connectionID -> Connection
	conversations map[string]map[string]interfaces.Connection

	metrics *metrics.Metrics
}

// NewRegistry creates a new connection registry, m may be nil
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		connections:   make(map[string]interfaces.Connection),
		conversations: make(map[string]map[string]interfaces.Connection),
		metrics:       m,
	}
}

// authenticated is implemented by connections that track their auth state
type authenticated interface {
	IsAuthenticated() bool
}

// Register adds a subscriber to its conversation
// FUNCTIONAL DISCOVERY: one user may hold several sockets (tabs) on one conversation,
// each is an independent subscriber
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if a, ok := conn.(authenticated); ok && !a.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	id := conn.GetID()
	conversationID := conn.GetConversationID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, exists := r.connections[id]; exists {
		r.removeLocked(previous)
	}

	r.connections[id] = conn
	if r.conversations[conversationID] == nil {
		r.conversations[conversationID] = make(map[string]interfaces.Connection)
	}
	r.conversations[conversationID][id] = conn

	if r.metrics != nil {
		r.metrics.ActiveConnections.Set(float64(len(r.connections)))
	}
	return nil
}

// Unregister removes conn if it is the instance registered under its id
// RACE CONDITION FIX: a stale connection cannot unregister a newer one with the same id
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[conn.GetID()]
	if !exists || registered != conn {
		return
	}
	r.removeLocked(conn)

	if r.metrics != nil {
		r.metrics.ActiveConnections.Set(float64(len(r.connections)))
	}
}

func (r *Registry) removeLocked(conn interfaces.Connection) {
	id := conn.GetID()
	delete(r.connections, id)

	conversationID := conn.GetConversationID()
	if subscribers, exists := r.conversations[conversationID]; exists {
		delete(subscribers, id)
		// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
		if len(subscribers) == 0 {
			delete(r.conversations, conversationID)
		}
	}
}

// Subscribers returns the connections subscribed to a conversation
func (r *Registry) Subscribers(conversationID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscribers := r.conversations[conversationID]
	connections := make([]interfaces.Connection, 0, len(subscribers))
	for _, conn := range subscribers {
		connections = append(connections, conn)
	}
	return connections
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections":    len(r.connections),
		"active_conversations": len(r.conversations),
	}
}

// CloseAll closes every registered connection, used on shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	connections := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	r.mu.RUnlock()

	for _, conn := range connections {
		_ = conn.Close()
	}
}
