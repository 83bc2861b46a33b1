// Package observer streams claim map markers to map renderers over
// websockets. Server is a render.Sink.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bonfire.gg/internal/observerproto"
	"bonfire.gg/internal/render"
)

type markerKey struct {
	set   string
	world uuid.UUID
	id    string
}

type subscriber struct {
	out    chan []byte
	world  *uuid.UUID
	closed bool
}

func (s *subscriber) wants(world uuid.UUID) bool {
	return s.world == nil || *s.world == world
}

type Server struct {
	log *log.Logger

	// AllowRemote lets non-loopback clients connect.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	setID    string
	setLabel string
	markers  map[markerKey]render.Marker
	subs     map[string]*subscriber
}

var _ render.Sink = (*Server)(nil)

func NewServer(style render.Style, logger *log.Logger) *Server {
	return &Server{
		log:      logger,
		setID:    style.MarkerSetID,
		setLabel: style.MarkerSetLabel,
		markers:  map[markerKey]render.Marker{},
		subs:     map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// SetMarkerSet updates the set metadata reported by the bootstrap endpoint.
func (s *Server) SetMarkerSet(id, label string) {
	s.mu.Lock()
	s.setID, s.setLabel = id, label
	s.mu.Unlock()
}

func (s *Server) Upsert(m render.Marker) {
	b, err := json.Marshal(observerproto.MarkerUpsertMsg{
		Type:            observerproto.TypeMarkerUpsert,
		ProtocolVersion: observerproto.Version,
		Marker:          m,
	})
	if err != nil {
		s.logf("marshal marker %s: %v", m.ID, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[markerKey{m.Set, m.World, m.ID}] = m
	s.broadcastLocked(m.World, b)
}

func (s *Server) Remove(set string, world uuid.UUID, id string) {
	b, err := json.Marshal(observerproto.MarkerRemoveMsg{
		Type:            observerproto.TypeMarkerRemove,
		ProtocolVersion: observerproto.Version,
		Set:             set,
		World:           world,
		ID:              id,
	})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := markerKey{set, world, id}
	if _, ok := s.markers[k]; !ok {
		return
	}
	delete(s.markers, k)
	s.broadcastLocked(world, b)
}

// Reset drops every marker and sends each subscriber an empty snapshot.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = map[markerKey]render.Marker{}
	for sid, sub := range s.subs {
		s.snapshotLocked(sid, sub)
	}
}

// Markers returns the current markers ordered by world and id.
func (s *Server) Markers() []render.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchingLocked(nil)
}

func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) matchingLocked(world *uuid.UUID) []render.Marker {
	out := make([]render.Marker, 0, len(s.markers))
	for _, m := range s.markers {
		if world == nil || *world == m.World {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].World != out[j].World {
			return out[i].World.String() < out[j].World.String()
		}
		return out[i].ClaimID < out[j].ClaimID
	})
	return out
}

func (s *Server) broadcastLocked(world uuid.UUID, b []byte) {
	for sid, sub := range s.subs {
		if !sub.wants(world) {
			continue
		}
		s.sendLocked(sid, sub, b)
	}
}

// sendLocked never blocks; a subscriber that cannot keep up is dropped.
func (s *Server) sendLocked(sid string, sub *subscriber, b []byte) {
	select {
	case sub.out <- b:
	default:
		s.logf("observer %s too slow, dropping", sid)
		delete(s.subs, sid)
		sub.closed = true
		close(sub.out)
	}
}

func (s *Server) snapshotLocked(sid string, sub *subscriber) {
	b, err := json.Marshal(observerproto.SnapshotMsg{
		Type:            observerproto.TypeSnapshot,
		ProtocolVersion: observerproto.Version,
		Markers:         s.matchingLocked(sub.world),
	})
	if err != nil {
		return
	}
	s.sendLocked(sid, sub, b)
}

// subscribe registers or updates sid and queues a snapshot for it.
func (s *Server) subscribe(sid string, sub *subscriber, msg observerproto.SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.closed {
		return
	}
	s.subs[sid] = sub
	sub.world = msg.World
	s.snapshotLocked(sid, sub)
}

func (s *Server) unsubscribe(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[sid]; ok {
		delete(s.subs, sid)
		sub.closed = true
		close(sub.out)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			MarkerSetID:     s.setID,
			MarkerSetLabel:  s.setLabel,
			Markers:         len(s.markers),
		}
		s.mu.Unlock()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		state := &subscriber{out: make(chan []byte, 1024)}
		s.subscribe(sid, state, sub)
		defer s.unsubscribe(sid)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-state.out:
					if !ok {
						// Dropped by the hub; unblock the reader.
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				s.subscribe(sid, state, sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == observerproto.TypeSubscribe && sub.ProtocolVersion == observerproto.Version
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
