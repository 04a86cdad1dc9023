package gateway_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	gateway "github.com/radieske/sports-wager-engine/internal/api-gateway"
)

// echo responde com o nome do upstream, o path recebido e o usuário
func echo(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.URL.Path+" "+r.Header.Get("X-User-ID"))
	}))
}

func TestRoutesToUpstreams(t *testing.T) {
	wallet, wager := echo("wallet"), echo("wager")
	defer wallet.Close()
	defer wager.Close()

	h, err := gateway.Router(gateway.Upstreams{WalletURL: wallet.URL, WagerURL: wager.URL}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	gw := httptest.NewServer(h)
	defer gw.Close()

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/api/wallet/u1", http.StatusOK, "wallet /wallet/u1 u1"},
		{http.MethodGet, "/api/wallet/u1/transactions", http.StatusOK, "wallet /wallet/u1/transactions u1"},
		{http.MethodPost, "/api/wallet/deposit", http.StatusOK, "wallet /wallet/deposit u1"},
		{http.MethodPost, "/api/wallet/withdraw", http.StatusOK, "wallet /wallet/withdraw u1"},
		{http.MethodGet, "/api/wagers", http.StatusOK, "wager /wagers u1"},
		{http.MethodGet, "/api/wagers/w1", http.StatusOK, "wager /wagers/w1 u1"},
		{http.MethodGet, "/api/parlays/p1", http.StatusOK, "wager /parlays/p1 u1"},
		{http.MethodGet, "/api/users/u1/wagers", http.StatusOK, "wager /users/u1/wagers u1"},
		{http.MethodGet, "/api/internal/selections/s1/resolve", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, gw.URL+tt.path, nil)
			req.Header.Set("X-User-ID", "u1")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.body == "" {
				return
			}
			b, _ := io.ReadAll(resp.Body)
			if string(b) != tt.body {
				t.Fatalf("body = %q, want %q", b, tt.body)
			}
		})
	}
}

func TestLedgerWritesAreNotExposed(t *testing.T) {
	var hits int
	wallet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = io.WriteString(w, "ok")
	}))
	defer wallet.Close()

	h, err := gateway.Router(gateway.Upstreams{WalletURL: wallet.URL, WagerURL: wallet.URL}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"/api/wallet/credit", "/api/wallet/reserve", "/api/wallet/refund"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			body := strings.NewReader(`{"user_id":"u1","amount":"1000","wager_ref":"x"}`)
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, body))
			if rec.Code < 400 {
				t.Fatalf("status = %d, want rejection", rec.Code)
			}
		})
	}
	if hits != 0 {
		t.Fatalf("wallet reached %d times", hits)
	}
}

func TestUpstreamDownIsBadGateway(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	h, err := gateway.Router(gateway.Upstreams{WalletURL: url, WagerURL: url}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wallet/u1", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPreflight(t *testing.T) {
	h, err := gateway.Router(gateway.Upstreams{WalletURL: "http://127.0.0.1:1", WagerURL: "http://127.0.0.1:1"}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/wagers", nil))
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("status = %d headers = %v", rec.Code, rec.Header())
	}
}
