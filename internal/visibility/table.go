package visibility

import (
	"slices"

	"arena-rooms/server/internal/entity"
	"arena-rooms/server/internal/player"
)

// Callbacks are invoked when a connection starts or stops observing an
// entity.
type Callbacks struct {
	Show func(conn player.Conn, e Networked)
	Hide func(conn player.Conn, e Networked)
}

// Table is the default Tracker. It keeps the last observer set of every
// entity and reports the difference when a new set arrives.
type Table struct {
	observers map[entity.ID][]player.Conn
	callbacks Callbacks
}

func NewTable(callbacks Callbacks) *Table {
	return &Table{
		observers: make(map[entity.ID][]player.Conn),
		callbacks: callbacks,
	}
}

// SetObservers replaces the observer set of e. Connections that left the
// set are hidden first, in their previous order; new connections are then
// shown in the order given.
func (t *Table) SetObservers(e Networked, observers []player.Conn) {
	id := e.EntityID()
	previous := t.observers[id]

	for _, conn := range previous {
		if !containsConn(observers, conn.ID()) && t.callbacks.Hide != nil {
			t.callbacks.Hide(conn, e)
		}
	}

	next := make([]player.Conn, 0, len(observers))
	for _, conn := range observers {
		if conn == nil || containsConn(next, conn.ID()) {
			continue
		}
		next = append(next, conn)
		if !containsConn(previous, conn.ID()) && t.callbacks.Show != nil {
			t.callbacks.Show(conn, e)
		}
	}
	t.observers[id] = next
}

// Forget hides e from all of its observers and drops it.
func (t *Table) Forget(e Networked) {
	id := e.EntityID()
	previous, ok := t.observers[id]
	if !ok {
		return
	}
	delete(t.observers, id)
	if t.callbacks.Hide == nil {
		return
	}
	for _, conn := range previous {
		t.callbacks.Hide(conn, e)
	}
}

// Observers lists the ids of the connections currently observing id.
func (t *Table) Observers(id entity.ID) []string {
	conns := t.observers[id]
	if len(conns) == 0 {
		return nil
	}
	ids := make([]string, len(conns))
	for i, conn := range conns {
		ids[i] = conn.ID()
	}
	return ids
}

// IsObserving reports whether connID currently observes id.
func (t *Table) IsObserving(id entity.ID, connID string) bool {
	return containsConn(t.observers[id], connID)
}

// Len reports how many entities are tracked.
func (t *Table) Len() int {
	return len(t.observers)
}

func containsConn(conns []player.Conn, id string) bool {
	return slices.ContainsFunc(conns, func(conn player.Conn) bool {
		return conn != nil && conn.ID() == id
	})
}
