package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/ratelimiter"
)

type testHub struct {
	core   *Core
	srv    *httptest.Server
	cancel context.CancelFunc
}

// newTestHub serves /ws?user=<id>&channel=<name> and registers every connection with a running Core.
func newTestHub(t *testing.T, limiter ratelimiter.Limiter) *testHub {
	t.Helper()

	core := NewCore(limiter, nil, logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go core.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(conn, r.URL.Query().Get("user"), r.URL.Query().Get("channel"))
		if !core.Register(client) {
			_ = conn.Close()
			return
		}
		go client.WriteMessage()
		go client.ReadMessage(core)
	}))

	h := &testHub{core: core, srv: srv, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h
}

func (h *testHub) dial(t *testing.T, channel, user string) *websocket.Conn {
	t.Helper()

	before := h.core.ClientCount(channel)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?user=" + user + "&channel=" + channel
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	waitFor(t, func() bool { return h.core.ClientCount(channel) > before })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) *WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return &msg
}

// expectSilence leaves conn unusable, so call it last.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var msg WSMessage
	err := conn.ReadJSON(&msg)
	if err == nil {
		t.Fatalf("unexpected message %+v", msg)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("ReadJSON() error = %v, want timeout", err)
	}
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("ReadMessage() error = %v, want normal closure", err)
		}
		return
	}
}

func errorCode(t *testing.T, msg *WSMessage) string {
	t.Helper()
	if msg.Type != ErrorEvent {
		t.Fatalf("type = %q, want %q", msg.Type, ErrorEvent)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %#v", msg.Payload)
	}
	code, _ := payload["code"].(string)
	return code
}

func TestPublishStaysOnChannel(t *testing.T) {
	h := newTestHub(t, nil)
	a1 := h.dial(t, "chan-a", "u1")
	a2 := h.dial(t, "chan-a", "u2")
	b1 := h.dial(t, "chan-b", "u3")

	h.core.Publish("chan-a", domain.Envelope{Type: domain.SignalParticipantJoined, Payload: map[string]any{"userId": "u4"}})

	for _, conn := range []*websocket.Conn{a1, a2} {
		msg := readMessage(t, conn)
		if msg.Type != domain.SignalParticipantJoined || msg.Channel != "chan-a" {
			t.Fatalf("message = %+v", msg)
		}
	}
	expectSilence(t, b1)
}

func TestDirectReachesOnlyTheUser(t *testing.T) {
	h := newTestHub(t, nil)
	u1 := h.dial(t, "chan-a", "u1")
	u2a := h.dial(t, "chan-a", "u2")
	u2b := h.dial(t, "chan-a", "u2")

	if !h.core.Direct("chan-a", "u2", domain.Envelope{Type: domain.SignalGameRole, Payload: map[string]any{"role": "imposter"}}) {
		t.Fatal("Direct() = false, want delivered")
	}
	if h.core.Direct("chan-a", "nobody", domain.Envelope{Type: domain.SignalGameRole}) {
		t.Fatal("Direct() to an absent user = true")
	}
	if h.core.Direct("chan-missing", "u2", domain.Envelope{Type: domain.SignalGameRole}) {
		t.Fatal("Direct() on a missing channel = true")
	}

	for _, conn := range []*websocket.Conn{u2a, u2b} {
		if msg := readMessage(t, conn); msg.Type != domain.SignalGameRole {
			t.Fatalf("message = %+v", msg)
		}
	}
	expectSilence(t, u1)
}

func TestCloseChannelClosesConnections(t *testing.T) {
	h := newTestHub(t, nil)
	a1 := h.dial(t, "chan-a", "u1")
	a2 := h.dial(t, "chan-a", "u2")
	b1 := h.dial(t, "chan-b", "u3")

	h.core.Close("chan-a")

	expectClosed(t, a1)
	expectClosed(t, a2)
	if n := h.core.ClientCount("chan-a"); n != 0 {
		t.Fatalf("ClientCount(chan-a) = %d, want 0", n)
	}

	h.core.Publish("chan-b", domain.Envelope{Type: domain.SignalGamePhase})
	if msg := readMessage(t, b1); msg.Type != domain.SignalGamePhase {
		t.Fatalf("message = %+v", msg)
	}
}

func TestDisconnectDropsOneUser(t *testing.T) {
	h := newTestHub(t, nil)
	stay := h.dial(t, "chan-a", "u1")
	gone := h.dial(t, "chan-a", "u2")

	h.core.Disconnect("chan-a", "u2")

	expectClosed(t, gone)
	if n := h.core.ClientCount("chan-a"); n != 1 {
		t.Fatalf("ClientCount() = %d, want 1", n)
	}

	h.core.Publish("chan-a", domain.Envelope{Type: domain.SignalParticipantLeft})
	if msg := readMessage(t, stay); msg.Type != domain.SignalParticipantLeft {
		t.Fatalf("message = %+v", msg)
	}
}

func TestRelayStampsSender(t *testing.T) {
	h := newTestHub(t, nil)
	sender := h.dial(t, "chan-a", "u1")
	peer := h.dial(t, "chan-a", "u2")

	if err := sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"rtc.offer","from":"u2","payload":{"sdp":"v=0"}}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	msg := readMessage(t, peer)
	if msg.Type != "rtc.offer" || msg.From != "u1" || msg.Channel != "chan-a" {
		t.Fatalf("relayed = %+v, want rtc.offer from u1", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["sdp"] != "v=0" {
		t.Fatalf("payload = %#v", msg.Payload)
	}
}

func TestRelayRejectsBadEnvelopes(t *testing.T) {
	h := newTestHub(t, nil)
	conn := h.dial(t, "chan-a", "u1")

	for _, raw := range []string{`not json`, `{"payload":{}}`, `[1,2]`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
		if code := errorCode(t, readMessage(t, conn)); code != BadEnvelope {
			t.Fatalf("%s: code = %q, want %q", raw, code, BadEnvelope)
		}
	}
}

func TestRelayIsRateLimited(t *testing.T) {
	now := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	limiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: 1,
		MaxBurst:         1,
		Now:              func() time.Time { return now },
	})
	h := newTestHub(t, limiter)
	sender := h.dial(t, "chan-a", "u1")
	peer := h.dial(t, "chan-a", "u2")

	for i := 0; i < 2; i++ {
		if err := sender.WriteMessage(websocket.TextMessage, []byte(`{"type":"rtc.candidate"}`)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	// The relay and the rejection take different paths, so either may arrive first.
	var relayed, limited int
	for i := 0; i < 2; i++ {
		msg := readMessage(t, sender)
		switch {
		case msg.Type == "rtc.candidate":
			relayed++
		case errorCode(t, msg) == RateLimited:
			limited++
		}
	}
	if relayed != 1 || limited != 1 {
		t.Fatalf("relayed=%d limited=%d, want 1 and 1", relayed, limited)
	}

	if msg := readMessage(t, peer); msg.Type != "rtc.candidate" {
		t.Fatalf("peer message = %+v", msg)
	}
	expectSilence(t, peer)
}

func TestShutdownClosesClients(t *testing.T) {
	h := newTestHub(t, nil)
	conn := h.dial(t, "chan-a", "u1")

	h.cancel()

	expectClosed(t, conn)
	waitFor(t, func() bool { return h.core.ClientCount("chan-a") == 0 })
}

func TestStoppedCoreNeverBlocks(t *testing.T) {
	core := NewCore(nil, nil, logging.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		core.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan bool)
	go func() {
		cl := &Client{ID: "c1", UserID: "u1", ChannelName: "chan-a", Message: make(chan *WSMessage, 1)}
		core.unregisterClient(cl)
		core.relay(&WSMessage{Type: "rtc.offer", Channel: "chan-a"})
		done <- core.Register(cl)
	}()

	select {
	case registered := <-done:
		if registered {
			t.Fatal("Register() on a stopped core = true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client traffic blocked after shutdown")
	}
}
