package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/observerproto"
	"bonfire.gg/internal/render"
)

var (
	worldA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	worldB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func marker(id int64, world uuid.UUID) render.Marker {
	return render.Marker{ID: render.MarkerID(claims.ID(id)), Set: "bonfire_claims", ClaimID: id, World: world}
}

func dial(t *testing.T, srv *httptest.Server, sub observerproto.SubscribeMsg) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	b, _ := json.Marshal(sub)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func msgType(t *testing.T, m map[string]json.RawMessage) string {
	t.Helper()
	var s string
	_ = json.Unmarshal(m["type"], &s)
	return s
}

func TestObserver_SnapshotThenUpdates(t *testing.T) {
	hub := NewServer(render.DefaultStyle(), nil)
	hub.Upsert(marker(1, worldA))
	srv := httptest.NewServer(hub.WSHandler())
	defer srv.Close()

	conn := dial(t, srv, observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version})
	snap := readMsg(t, conn)
	if msgType(t, snap) != observerproto.TypeSnapshot {
		t.Fatalf("first message=%s", snap["type"])
	}
	var markers []render.Marker
	_ = json.Unmarshal(snap["markers"], &markers)
	if len(markers) != 1 || markers[0].ID != "claim_1" {
		t.Fatalf("snapshot markers=%+v", markers)
	}

	hub.Upsert(marker(2, worldA))
	if got := msgType(t, readMsg(t, conn)); got != observerproto.TypeMarkerUpsert {
		t.Fatalf("got %s want MARKER_UPSERT", got)
	}
	hub.Remove("bonfire_claims", worldA, "claim_1")
	rm := readMsg(t, conn)
	if msgType(t, rm) != observerproto.TypeMarkerRemove || string(rm["id"]) != `"claim_1"` {
		t.Fatalf("remove msg=%v", rm)
	}
	if n := len(hub.Markers()); n != 1 {
		t.Fatalf("markers=%d want 1", n)
	}
}

func TestObserver_WorldFilter(t *testing.T) {
	hub := NewServer(render.DefaultStyle(), nil)
	hub.Upsert(marker(1, worldA))
	hub.Upsert(marker(2, worldB))
	srv := httptest.NewServer(hub.WSHandler())
	defer srv.Close()

	w := worldB
	conn := dial(t, srv, observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, World: &w})
	var markers []render.Marker
	_ = json.Unmarshal(readMsg(t, conn)["markers"], &markers)
	if len(markers) != 1 || markers[0].World != worldB {
		t.Fatalf("filtered snapshot=%+v", markers)
	}

	hub.Upsert(marker(3, worldA))
	hub.Upsert(marker(4, worldB))
	up := readMsg(t, conn)
	var m render.Marker
	_ = json.Unmarshal(up["marker"], &m)
	if m.ClaimID != 4 {
		t.Fatalf("expected only world B update, got claim %d", m.ClaimID)
	}
}

func TestObserver_RejectsBadHandshake(t *testing.T) {
	hub := NewServer(render.DefaultStyle(), nil)
	srv := httptest.NewServer(hub.WSHandler())
	defer srv.Close()

	conn := dial(t, srv, observerproto.SubscribeMsg{Type: "HELLO", ProtocolVersion: observerproto.Version})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after bad handshake")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("subscriber registered after bad handshake")
	}
}

func TestObserver_ResetSendsEmptySnapshot(t *testing.T) {
	hub := NewServer(render.DefaultStyle(), nil)
	hub.Upsert(marker(1, worldA))
	srv := httptest.NewServer(hub.WSHandler())
	defer srv.Close()

	conn := dial(t, srv, observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version})
	_ = readMsg(t, conn)
	hub.Reset()
	snap := readMsg(t, conn)
	if msgType(t, snap) != observerproto.TypeSnapshot || string(snap["markers"]) != "[]" {
		t.Fatalf("reset snapshot=%s", snap["markers"])
	}
}

func TestBootstrapHandler(t *testing.T) {
	hub := NewServer(render.DefaultStyle(), nil)
	hub.Upsert(marker(1, worldA))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	hub.BootstrapHandler()(rec, req)
	var resp observerproto.BootstrapResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MarkerSetID != "bonfire_claims" || resp.Markers != 1 {
		t.Fatalf("bootstrap=%+v", resp)
	}

	rec = httptest.NewRecorder()
	req.RemoteAddr = "10.0.0.5:5000"
	hub.BootstrapHandler()(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d want 403", rec.Code)
	}
}
