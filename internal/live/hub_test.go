package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"attendtrack/internal/model"
)

func TestHubDeliversToClassSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("class"))
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?class=demo", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// registration races with the handshake, so keep publishing until one lands
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
				hub.AttendanceMarked(model.AttendanceRecord{ID: "other", ClassID: "other"})
				hub.AttendanceMarked(model.AttendanceRecord{ID: "r1", ClassID: "demo", StudentID: "s1"})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "attendance" || ev.Payload.ClassID != "demo" || ev.Payload.ID != "r1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestAttendanceMarkedNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.AttendanceMarked(model.AttendanceRecord{ClassID: "demo"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("AttendanceMarked blocked without a running hub")
	}
}
