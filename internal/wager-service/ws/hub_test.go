package ws_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/wager-service/ws"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

func dial(t *testing.T, hub *ws.Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatal(err)
	}
	return conn, func() { conn.Close(); srv.Close() }
}

// roundTrip envia ping e espera o pong: tudo enviado antes já foi processado
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.WriteJSON(ws.ClientMsg{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil || m["type"] != "pong" {
		t.Fatalf("pong: %v %v", m, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	hub := ws.NewHub(func(*http.Request) bool { return true }, zap.NewNop())
	conn, closeFn := dial(t, hub)
	defer closeFn()

	_ = conn.WriteJSON(ws.ClientMsg{Type: "subscribe", EventID: "ev1"})
	roundTrip(t, conn)
	if hub.Subscribers("ev1") != 1 {
		t.Fatalf("subscribers = %d", hub.Subscribers("ev1"))
	}

	hub.Broadcast(events.PriceChanged{SelectionID: "s9", EventID: "ev2", Odds: decimal.NewFromFloat(3.1)})
	hub.Broadcast(events.PriceChanged{SelectionID: "s1", EventID: "ev1", Odds: decimal.NewFromFloat(1.9)})

	var upd ws.PriceUpdate
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&upd); err != nil {
		t.Fatal(err)
	}
	if upd.EventID != "ev1" || upd.Payload.SelectionID != "s1" || !upd.Payload.Odds.Equal(decimal.NewFromFloat(1.9)) {
		t.Fatalf("update = %+v", upd)
	}
}

func TestUnsubscribeAndDisconnectCleanUp(t *testing.T) {
	hub := ws.NewHub(func(*http.Request) bool { return true }, zap.NewNop())
	conn, closeFn := dial(t, hub)

	for _, ev := range []string{"ev1", "ev2", "ev3"} {
		_ = conn.WriteJSON(ws.ClientMsg{Type: "subscribe", EventID: ev})
	}
	_ = conn.WriteJSON(ws.ClientMsg{Type: "unsubscribe", EventID: "ev3"})
	roundTrip(t, conn)
	if hub.Subscribers("ev3") != 0 || hub.Subscribers("ev1") != 1 {
		t.Fatalf("after unsubscribe: ev1=%d ev3=%d", hub.Subscribers("ev1"), hub.Subscribers("ev3"))
	}

	closeFn()
	waitFor(t, func() bool { return hub.Subscribers("ev1") == 0 && hub.Subscribers("ev2") == 0 })
}
