package notification

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 64
)

// session is one live websocket of a user. A user may hold several.
type session struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
}

// Registry tracks live sessions per user. It is owned by a Dispatcher and
// closed with it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]map[*session]struct{}
	closed   bool
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]map[*session]struct{})}
}

func (r *Registry) register(s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	set, ok := r.sessions[s.userID]
	if !ok {
		set = make(map[*session]struct{})
		r.sessions[s.userID] = set
	}
	set[s] = struct{}{}
	return true
}

func (r *Registry) unregister(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[s.userID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.send)
	if len(set) == 0 {
		delete(r.sessions, s.userID)
	}
}

// Push hands payload to every session of userID and reports how many
// accepted it. Slow sessions with a full buffer are skipped.
func (r *Registry) Push(userID int64, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for s := range r.sessions[userID] {
		select {
		case s.send <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}

// Serve runs a session until the peer disconnects or the registry closes.
func (r *Registry) Serve(conn *websocket.Conn, userID int64) {
	s := &session{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	if !r.register(s) {
		_ = conn.Close()
		return
	}

	go r.writePump(s)
	r.readPump(s)
}

// Close drops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for userID, set := range r.sessions {
		for s := range set {
			close(s.send)
		}
		delete(r.sessions, userID)
	}
}

// readPump only drains control frames; clients never send notifications.
func (r *Registry) readPump(s *session) {
	defer func() {
		r.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Registry) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
