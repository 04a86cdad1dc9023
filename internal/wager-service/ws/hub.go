package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

const (
	sendBuffer = 32
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 5 * time.Second
)

// client tem fila própria de escrita; a goroutine de escrita é a única
// que escreve na conexão.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	events map[string]struct{} // eventos assinados, protegido por Hub.mu
}

// Hub mantém as assinaturas de preço por eventID
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*client]struct{}
}

// NewHub cria o hub com política de origem customizada
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão: subscribe, unsubscribe
// e ping. Qualquer saída do loop de leitura remove o cliente de todas as
// assinaturas.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), events: make(map[string]struct{})}
	metrics.WSClients.Inc()

	done := make(chan struct{})
	go h.writePump(c, done)
	defer func() {
		h.remove(c)
		close(done)
		_ = conn.Close()
		metrics.WSClients.Dec()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		switch msg.Type {
		case "subscribe":
			if msg.EventID != "" {
				h.subscribe(c, msg.EventID)
			}
		case "unsubscribe":
			h.unsubscribe(c, msg.EventID)
		case "ping":
			h.enqueue(c, []byte(`{"type":"pong"}`))
		}
	}
}

// Broadcast entrega a atualização aos inscritos no evento. Cliente com fila
// cheia perde a mensagem; o broadcast nunca bloqueia.
func (h *Hub) Broadcast(p events.PriceChanged) {
	h.mu.RLock()
	set := h.subs[p.EventID]
	targets := make([]*client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(PriceUpdate{Type: "price", EventID: p.EventID, Payload: p})
	if err != nil {
		return
	}
	for _, c := range targets {
		h.enqueue(c, b)
	}
}

// Subscribers retorna quantos clientes assinam o evento
func (h *Hub) Subscribers(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[eventID])
}

func (h *Hub) enqueue(c *client, b []byte) {
	select {
	case c.send <- b:
	default:
		h.log.Debug("ws client slow, dropping message")
	}
}

func (h *Hub) subscribe(c *client, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[eventID]
	if !ok {
		set = make(map[*client]struct{})
		h.subs[eventID] = set
	}
	set[c] = struct{}{}
	c.events[eventID] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c, eventID)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for eventID := range c.events {
		h.drop(c, eventID)
	}
}

// drop exige h.mu travado
func (h *Hub) drop(c *client, eventID string) {
	if set, ok := h.subs[eventID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, eventID)
		}
	}
	delete(c.events, eventID)
}

func (h *Hub) writePump(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				_ = c.conn.Close() // derruba o loop de leitura
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
