package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return evt
}

func TestPublishReachesConnectedClient(t *testing.T) {
	g := New(nil, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWebSocket))
	defer srv.Close()
	defer g.Close()

	conn, _, err := dial(t, srv, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if hello := readEvent(t, conn); hello.Type != EventHello {
		t.Fatalf("expected hello frame, got %+v", hello)
	}
	if n := g.ConnectionCount(); n != 1 {
		t.Fatalf("expected 1 connection, got %d", n)
	}

	g.Publish(Event{Action: ActionUpdated, RuleID: 42, Group: "unit_4", Attribute: "weapon_type", Tier: "S"})
	evt := readEvent(t, conn)
	if evt.Type != EventRulesChanged || evt.Action != ActionUpdated || evt.RuleID != 42 || evt.Group != "unit_4" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.At.IsZero() {
		t.Fatalf("expected event timestamp")
	}
}

func TestOriginAllowList(t *testing.T) {
	g := New([]string{"https://admin.example.edu"}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWebSocket))
	defer srv.Close()
	defer g.Close()

	if _, resp, err := dial(t, srv, "https://evil.example.com"); err == nil {
		t.Fatalf("expected foreign origin to be rejected")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	conn, _, err := dial(t, srv, "https://admin.example.edu")
	if err != nil {
		t.Fatalf("dial allowed origin: %v", err)
	}
	conn.Close()
}

func TestPublishWithoutClientsIsNoop(t *testing.T) {
	g := New(nil, zerolog.Nop())
	g.Publish(Event{Action: ActionDeleted, RuleID: 1})
	if g.ConnectionCount() != 0 {
		t.Fatalf("expected no connections")
	}
}
