package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Placements conta tentativas de aposta por tipo (single|parlay) e resultado (kind do erro ou "ok")
	Placements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_placements_total",
		Help: "Apostas processadas por tipo e resultado",
	}, []string{"kind", "result"})

	PlacementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wager_placement_latency_seconds",
		Help:    "Latência da colocação de aposta",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_compensations_total",
		Help: "Estornos compensatórios após falha na criação da aposta",
	}, []string{"result"}) // ok | failed

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_settlements_total",
		Help: "Apostas e múltiplas liquidadas por status final",
	}, []string{"kind", "status"})

	CreditFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_credit_failures_total",
		Help: "Créditos de liquidação que falharam e foram enfileirados",
	}, []string{"op"})

	CreditRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_credit_retries_total",
		Help: "Reprocessamentos de crédito por resultado",
	}, []string{"result"}) // ok | retry | dlq

	LedgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_ledger_operations_total",
		Help: "Operações do ledger por tipo e resultado",
	}, []string{"op", "result"})

	PriceUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "price_processor_updates_total",
		Help: "Atualizações de odds processadas por estágio",
	}, []string{"stage"}) // consumed | cached | broadcast | error_*

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_ws_clients",
		Help: "Clientes WebSocket conectados ao feed de odds",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "route"})
)

// ObservePlacement registra resultado e latência de uma colocação
func ObservePlacement(kind, result string, started time.Time) {
	Placements.WithLabelValues(kind, result).Inc()
	PlacementLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Middleware registra métricas por rota chi (padrão da rota, não o path
// cru, para não explodir a cardinalidade).
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captura o status code da resposta
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
