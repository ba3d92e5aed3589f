package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"whooshpad/internal/action"
	"whooshpad/internal/synth"
)

// recordingSynth records emitted ops for assertions.
type recordingSynth struct {
	mu  sync.Mutex
	ops []synth.Op
}

func (r *recordingSynth) Emit(op synth.Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	return nil
}

func (r *recordingSynth) snapshot() []synth.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]synth.Op, len(r.ops))
	copy(out, r.ops)
	return out
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *recordingSynth) {
	t.Helper()
	rec := &recordingSynth{}
	srv := NewServer(action.DefaultTable(), rec, Config{Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return srv, ts, rec
}

func dialClient(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })

	// First frame is the hello with our session id
	hello := readFrame(t, conn, TypeHello)
	if hello.Session == "" {
		t.Fatal("hello frame without session id")
	}
	return conn
}

// readFrame reads frames until one of the wanted type arrives,
// skipping interleaved broadcasts.
func readFrame(t *testing.T, conn *websocket.Conn, want MessageType) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func sendControl(t *testing.T, conn *websocket.Conn, actionID, phase string) {
	t.Helper()
	if err := conn.WriteJSON(ControlMessage{Action: actionID, Phase: phase}); err != nil {
		t.Fatalf("writing control message: %v", err)
	}
}

func waitForIdleGroup(t *testing.T, srv *Server, group action.Group) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if srv.Engine().GroupOwners()[group] == "" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("group %s never went idle", group)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSteeringConflictEndToEnd(t *testing.T) {
	_, ts, rec := newTestServer(t)

	clientA := dialClient(t, ts)
	clientB := dialClient(t, ts)

	// A grabs the steering group
	sendControl(t, clientA, "steer-left", "start")
	ack := readFrame(t, clientA, TypeAck)
	if ack.Status != "applied" {
		t.Fatalf("A start: expected applied, got %+v", ack)
	}

	// B's conflicting start is ignored, nothing emitted for it
	sendControl(t, clientB, "steer-right", "start")
	ack = readFrame(t, clientB, TypeAck)
	if ack.Status != "ignored" {
		t.Fatalf("B start: expected ignored, got %+v", ack)
	}

	ops := rec.snapshot()
	if len(ops) != 1 || ops[0].Kind != synth.OpKeyDown || ops[0].Key != synth.KeyA {
		t.Fatalf("expected a single key-down A, got %+v", ops)
	}

	// A releases; B can now steer
	sendControl(t, clientA, "steer-left", "stop")
	ack = readFrame(t, clientA, TypeAck)
	if ack.Status != "applied" {
		t.Fatalf("A stop: expected applied, got %+v", ack)
	}

	sendControl(t, clientB, "steer-right", "start")
	ack = readFrame(t, clientB, TypeAck)
	if ack.Status != "applied" {
		t.Fatalf("B start after release: expected applied, got %+v", ack)
	}

	ops = rec.snapshot()
	last := ops[len(ops)-1]
	if last.Kind != synth.OpKeyDown || last.Key != synth.KeyD {
		t.Fatalf("expected key-down D for B, got %+v", last)
	}
}

func TestGroupBroadcastReflectsOwnership(t *testing.T) {
	_, ts, _ := newTestServer(t)

	clientA := dialClient(t, ts)
	clientB := dialClient(t, ts)

	sendControl(t, clientA, "steer-left", "start")

	// Both clients learn who holds the steering group
	ev := readFrame(t, clientB, TypeGroup)
	if ev.Group != "steer" || ev.Owner == "" {
		t.Fatalf("expected held steer group event, got %+v", ev)
	}

	sendControl(t, clientA, "steer-left", "stop")
	ev = readFrame(t, clientB, TypeGroup)
	for ev.Owner != "" {
		ev = readFrame(t, clientB, TypeGroup)
	}
	if ev.Group != "steer" {
		t.Fatalf("expected idle steer group event, got %+v", ev)
	}
}

func TestDisconnectReleasesHolds(t *testing.T) {
	srv, ts, rec := newTestServer(t)

	clientA := dialClient(t, ts)
	clientB := dialClient(t, ts)

	sendControl(t, clientA, "steer-left", "start")
	if ack := readFrame(t, clientA, TypeAck); ack.Status != "applied" {
		t.Fatalf("A start: %+v", ack)
	}

	// Dropped phone: the hub must release everything A held
	clientA.Close()
	waitForIdleGroup(t, srv, action.GroupSteer)

	ops := rec.snapshot()
	last := ops[len(ops)-1]
	if last.Kind != synth.OpKeyUp || last.Key != synth.KeyA {
		t.Fatalf("expected key-up A after disconnect, got %+v", ops)
	}

	sendControl(t, clientB, "steer-right", "start")
	if ack := readFrame(t, clientB, TypeAck); ack.Status != "applied" {
		t.Fatalf("B start after A dropped: %+v", ack)
	}
}

func TestMalformedAndUnknownMessagesKeepConnectionOpen(t *testing.T) {
	_, ts, rec := newTestServer(t)

	client := dialClient(t, ts)

	// Not JSON at all
	if err := client.WriteMessage(websocket.TextMessage, []byte("steer pls")); err != nil {
		t.Fatal(err)
	}
	ack := readFrame(t, client, TypeAck)
	if ack.Status != "error" || ack.Reason == "" {
		t.Fatalf("expected parse error ack, got %+v", ack)
	}

	// Unknown action
	sendControl(t, client, "warp-speed", "tap")
	ack = readFrame(t, client, TypeAck)
	if ack.Status != "error" || !strings.Contains(ack.Reason, "unknown action") {
		t.Fatalf("expected unknown action ack, got %+v", ack)
	}

	// Unknown phase
	sendControl(t, client, "steer-left", "yank")
	ack = readFrame(t, client, TypeAck)
	if ack.Status != "error" {
		t.Fatalf("expected phase error ack, got %+v", ack)
	}

	if len(rec.snapshot()) != 0 {
		t.Fatalf("bad input reached the synthesizer: %+v", rec.snapshot())
	}

	// Connection is still usable
	sendControl(t, client, "emote-1", "tap")
	ack = readFrame(t, client, TypeAck)
	if ack.Status != "applied" {
		t.Fatalf("expected applied after errors, got %+v", ack)
	}
}

func TestFailingSynthesizerReportsErrorAck(t *testing.T) {
	rec := &failingSynth{}
	srv := NewServer(action.DefaultTable(), rec, Config{Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})

	client := dialClient(t, ts)
	sendControl(t, client, "steer-left", "start")
	ack := readFrame(t, client, TypeAck)
	if ack.Status != "error" {
		t.Fatalf("expected error ack, got %+v", ack)
	}
	if owner := srv.Engine().GroupOwners()[action.GroupSteer]; owner != "" {
		t.Fatalf("group stuck held after platform error: %q", owner)
	}
}

type failingSynth struct{}

func (f *failingSynth) Emit(op synth.Op) error {
	return &synth.PlatformError{Op: op, Err: errors.New("device unavailable")}
}

func TestHTTPKeyEndpoint(t *testing.T) {
	_, ts, rec := newTestServer(t)

	resp, err := http.Post(ts.URL+"/key/emote-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "applied" {
		t.Fatalf("expected applied, got %+v", body)
	}

	ops := rec.snapshot()
	if len(ops) != 2 || ops[0].Key != synth.Key1 {
		t.Fatalf("expected tap of key 1, got %+v", ops)
	}

	// Immediate duplicate from the same client address is debounced
	resp2, err := http.Post(ts.URL+"/key/emote-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var body2 map[string]string
	if err := json.NewDecoder(resp2.Body).Decode(&body2); err != nil {
		t.Fatal(err)
	}
	if body2["status"] != "ignored" {
		t.Fatalf("expected debounced duplicate, got %+v", body2)
	}

	// Unknown action is a 404
	resp3, err := http.Post(ts.URL+"/key/warp-speed", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", resp3.StatusCode)
	}
}

func TestHTTPKeyEndpointAcceptsLegacyIDs(t *testing.T) {
	_, ts, rec := newTestServer(t)

	for path, key := range map[string]synth.KeyCode{
		"/key/shift_up":  synth.KeyI,
		"/key/ui_toggle": synth.KeyU,
		"/key/hide_ui":   synth.KeyH,
	} {
		resp, err := http.Post(ts.URL+path, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if body["status"] != "applied" {
			t.Fatalf("%s: expected applied, got %+v", path, body)
		}

		ops := rec.snapshot()
		if len(ops) == 0 || ops[len(ops)-2].Key != key {
			t.Fatalf("%s: expected tap of key 0x%X, got %+v", path, key, ops)
		}
	}
}

func TestQueueAfterSlowClientEviction(t *testing.T) {
	h := newHub(zerolog.Nop())
	s := &Session{hub: h, id: "slow", send: make(chan []byte, 1)}
	h.sessions[s] = true
	s.send <- []byte("backlog")

	// Full send buffer: the hub evicts the session and closes its
	// channel while the read pump could still be queueing acks.
	h.broadcastMessage(ServerMessage{Type: TypeGroup, Group: "steer"})
	if h.count() != 0 {
		t.Fatal("slow session not evicted")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("queue after eviction panicked: %v", r)
		}
	}()
	s.queue(ServerMessage{Type: TypeAck, Status: "applied"})

	// And the unregister path tolerates the already-closed channel.
	s.closeSend()
}

func TestStatusEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	client := dialClient(t, ts)
	sendControl(t, client, "steer-left", "start")
	readFrame(t, client, TypeAck)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var status struct {
		Sessions int               `json:"sessions"`
		Groups   map[string]string `json:"groups"`
		Actions  []string          `json:"actions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Sessions != 1 {
		t.Fatalf("expected 1 session, got %d", status.Sessions)
	}
	if status.Groups["steer"] == "" {
		t.Fatal("expected steer group to be held")
	}
	if len(status.Actions) == 0 {
		t.Fatal("expected bound actions in status")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
