// Package gateway é o proxy reverso na frente da wallet e do wager-service.
// Rotas /internal do wager-service não são expostas.
package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
)

type Upstreams struct {
	WalletURL string
	WagerURL  string
}

func proxy(to string, log *zap.Logger) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil {
		return nil, err
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("upstream failed", zap.String("upstream", u.Host), zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream unavailable","code":"transient","kind":"transient"}`))
	}
	return rp, nil
}

// Router monta /api/wallet -> wallet e /api/{wagers,parlays,users,ws} -> wager-service
func Router(up Upstreams, log *zap.Logger) (http.Handler, error) {
	wallet, err := proxy(up.WalletURL, log)
	if err != nil {
		return nil, err
	}
	wager, err := proxy(up.WagerURL, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, withCORS, metrics.Middleware)

	// só leitura, depósito e saque; reserve/credit/refund ficam na rede interna
	w := http.StripPrefix("/api", wallet)
	r.Method(http.MethodGet, "/api/wallet/{userId}", w)
	r.Method(http.MethodGet, "/api/wallet/{userId}/transactions", w)
	r.Method(http.MethodPost, "/api/wallet/deposit", w)
	r.Method(http.MethodPost, "/api/wallet/withdraw", w)
	for _, prefix := range []string{"/api/wagers", "/api/parlays", "/api/users"} {
		r.Handle(prefix, http.StripPrefix("/api", wager))
		r.Handle(prefix+"/*", http.StripPrefix("/api", wager))
	}
	r.Handle("/api/ws", http.StripPrefix("/api", wager))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	return r, nil
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-User-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
