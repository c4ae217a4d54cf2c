package ws

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
)

// ErrClosed is returned when writing to a session that has been closed.
var ErrClosed = errors.New("websocket session closed")

// Session is one client connection. Writes may come from the loop goroutine
// and the reader goroutine at the same time, so they are serialised.
type Session struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu deadlock.Mutex
	closed  atomic.Bool

	framesOut atomic.Uint64
	bytesOut  atomic.Uint64
}

func newSession(conn *websocket.Conn, writeTimeout time.Duration) *Session {
	return &Session{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// ID returns the connection id assigned at upgrade.
func (s *Session) ID() string {
	return s.id
}

// Send writes one binary frame.
func (s *Session) Send(data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	s.framesOut.Add(1)
	s.bytesOut.Add(uint64(len(data)))
	return nil
}

// Close sends a close frame with code and reason and closes the socket.
// Later calls do nothing.
func (s *Session) Close(code int, reason string) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	s.writeMu.Unlock()
	_ = s.conn.Close()
}

// Stats reports what has been written to the session.
func (s *Session) Stats() (frames, bytes uint64) {
	return s.framesOut.Load(), s.bytesOut.Load()
}

// Registry tracks open sessions up to a capacity.
type Registry struct {
	mu       deadlock.RWMutex
	sessions map[string]*Session
	capacity int
}

// NewRegistry builds a registry; capacity <= 0 means unbounded.
func NewRegistry(capacity int) *Registry {
	return &Registry{sessions: make(map[string]*Session), capacity: capacity}
}

// Full reports whether another session would exceed capacity.
func (r *Registry) Full() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capacity > 0 && len(r.sessions) >= r.capacity
}

// Add registers s unless the registry is full.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity > 0 && len(r.sessions) >= r.capacity {
		return false
	}
	r.sessions[s.id] = s
	return true
}

// Remove drops the session with id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every open session. Used on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.RUnlock()
	for _, s := range open {
		s.Close(websocket.CloseGoingAway, reason)
	}
}
