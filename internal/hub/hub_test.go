package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"can-telemetry-dashboard/internal/logger"
	"can-telemetry-dashboard/internal/model"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() { _ = conn.Close(); srv.Close() }
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		h.mu.Lock()
		cur := len(h.subs)
		h.mu.Unlock()
		if cur == n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %d subscribers, have %d", n, cur)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHub_BroadcastChange(t *testing.T) {
	h := New(8, logger.NewNop())
	conn, done := dialHub(t, h)
	defer done()
	waitSubscribers(t, h, 1)

	h.PublishChange(model.ChangeEvent{Field: model.FieldSpeed, Value: 42.5, At: time.Now()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != "change" || env.Data == nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Data.Field != model.FieldSpeed || env.Data.Value != 42.5 {
		t.Fatalf("unexpected change: %+v", env.Data)
	}
}

func TestHub_BroadcastError(t *testing.T) {
	h := New(8, logger.NewNop())
	conn, done := dialHub(t, h)
	defer done()
	waitSubscribers(t, h, 1)

	h.PublishError("fetch can/status: transport: connection refused")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != "error" || env.Error == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestHub_MultipleSubscribersAllReceive(t *testing.T) {
	h := New(8, logger.NewNop())
	c1, done1 := dialHub(t, h)
	defer done1()
	c2, done2 := dialHub(t, h)
	defer done2()
	waitSubscribers(t, h, 2)

	h.PublishChange(model.ChangeEvent{Field: model.FieldMotorTemp, Value: 61, At: time.Now()})

	for _, conn := range []*websocket.Conn{c1, c2} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read: %v", err)
		}
		if env.Data == nil || env.Data.Field != model.FieldMotorTemp {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	}
}

func TestHub_FullBufferDropsNotBlocks(t *testing.T) {
	// Scenario: no reader draining the subscriber channel, buffer of 1
	// Expect: broadcasts return promptly; extra envelopes are dropped
	h := New(1, logger.NewNop())
	sub := &subscriber{id: "s1", ch: make(chan Envelope, 1)}
	h.addSubscriber(sub)
	defer h.removeSubscriber(sub.id)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.PublishChange(model.ChangeEvent{Field: model.FieldSpeed, Value: float64(i)})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
	if len(sub.ch) != 1 {
		t.Fatalf("want 1 buffered envelope, got %d", len(sub.ch))
	}
}

func TestHub_RemoveOnDisconnect(t *testing.T) {
	h := New(8, logger.NewNop())
	conn, done := dialHub(t, h)
	waitSubscribers(t, h, 1)
	_ = conn.Close()
	waitSubscribers(t, h, 0)
	done()
}
