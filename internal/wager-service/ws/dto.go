package ws

import "github.com/radieske/sports-wager-engine/pkg/contracts/events"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
type ClientMsg struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"` // requerido em subscribe/unsubscribe
}

// PriceUpdate é o envelope enviado aos clientes inscritos no evento
type PriceUpdate struct {
	Type    string              `json:"type"` // sempre "price"
	EventID string              `json:"event_id"`
	Payload events.PriceChanged `json:"payload"`
}
