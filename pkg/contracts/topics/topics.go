package topics

const (
	// Apostas
	WagerPlaced  = "wager_placed"
	WagerSettled = "wager_settled"

	// Resultados
	SelectionResolved    = "selection_resolved"
	SelectionResolvedDLQ = "selection_resolved_dlq"

	// Créditos que falharam durante a liquidação
	CreditRetry    = "wager_credit_retry"
	CreditRetryDLQ = "wager_credit_retry_dlq"

	// Odds
	PriceUpdates = "price_updates"

	// Canal Redis Pub/Sub usado pelo hub WebSocket
	PriceBroadcastChannel = "price_updates_broadcast"
)
