package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/grievancegenie/platform/internal/complaint/service"
	"github.com/grievancegenie/platform/internal/shared/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// streamedEvents are forwarded to watchers of the event's complaint.
var streamedEvents = []string{"complaint.*", service.EventVoteRecorded, service.EventEvidenceDecided}

// Stream pushes live timeline entries of a complaint to websocket clients.
type Stream struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	conn *websocket.Conn
	send chan []byte
}

func NewStream(log *slog.Logger, allowedOrigins []string) *Stream {
	return &Stream{
		log: log.With("component", "timeline_stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

// Subscribe attaches the stream to the bus.
func (s *Stream) Subscribe(ctx context.Context, bus events.EventBus) error {
	for _, pattern := range streamedEvents {
		if err := bus.Subscribe(ctx, pattern, "timeline-stream", s.Broadcast); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast fans an event out to the watchers of its complaint. Watchers
// that cannot keep up are disconnected.
func (s *Stream) Broadcast(_ context.Context, e events.Event) error {
	if e.Subject == "" {
		return nil
	}

	s.mu.RLock()
	n := len(s.watchers[e.Subject])
	s.mu.RUnlock()
	if n == 0 {
		return nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	var slow []*watcher
	s.mu.RLock()
	for w := range s.watchers[e.Subject] {
		select {
		case w.send <- data:
		default:
			slow = append(slow, w)
		}
	}
	s.mu.RUnlock()

	for _, w := range slow {
		s.log.Warn("dropping slow timeline watcher", slog.String("complaint_id", e.Subject))
		s.remove(e.Subject, w)
	}
	return nil
}

// ServeWS upgrades GET /ws/complaints/{complaintID}.
func (s *Stream) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, err := complaintID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	wt := &watcher{conn: conn, send: make(chan []byte, sendBuffer)}
	s.add(id.String(), wt)

	go s.writePump(wt)
	s.readPump(id.String(), wt)
}

// Watchers reports how many clients watch a complaint.
func (s *Stream) Watchers(complaintID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers[complaintID])
}

func (s *Stream) add(id string, w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.watchers[id]
	if !ok {
		set = make(map[*watcher]struct{})
		s.watchers[id] = set
	}
	set[w] = struct{}{}
}

// remove detaches w and closes its send channel, which ends writePump.
func (s *Stream) remove(id string, w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.watchers[id]
	if _, ok := set[w]; !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(s.watchers, id)
	}
	close(w.send)
}

// readPump only drains control frames; clients do not send data.
func (s *Stream) readPump(id string, w *watcher) {
	defer func() {
		s.remove(id, w)
		w.conn.Close()
	}()

	w.conn.SetReadLimit(maxMessageSize)
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("timeline watcher closed", slog.String("complaint_id", id), slog.Any("error", err))
			}
			return
		}
	}
}

func (s *Stream) writePump(w *watcher) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case message, ok := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				w.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// StreamRoutes mounts the websocket endpoint. It must sit outside
// middleware that wraps the ResponseWriter without http.Hijacker.
func (s *Stream) StreamRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/complaints/{complaintID}", s.ServeWS)
	return r
}
