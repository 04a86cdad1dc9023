package events

import "time"

// SelectionResolved dispara a liquidação de uma seleção.
// Void tem precedência sobre Won (seleção anulada devolve a stake).
type SelectionResolved struct {
	SelectionID string    `json:"selection_id"`
	Won         bool      `json:"won"`
	Void        bool      `json:"void,omitempty"`
	Ts          time.Time `json:"ts"`
}
