// Package client é o cliente HTTP do wallet-service usado pelos outros serviços.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/shared/httpx"
	"github.com/radieske/sports-wager-engine/internal/wallet-service/dto"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Reserve(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error) {
	return c.post(ctx, "/wallet/reserve", dto.ReserveRequest{UserID: userID, Amount: amount, WagerRef: wagerRef})
}

func (c *Client) Credit(ctx context.Context, userID string, amount decimal.Decimal, wagerRef string) (decimal.Decimal, error) {
	return c.post(ctx, "/wallet/credit", dto.CreditRequest{UserID: userID, Amount: amount, WagerRef: wagerRef})
}

func (c *Client) Refund(ctx context.Context, userID, wagerRef string) (decimal.Decimal, error) {
	return c.post(ctx, "/wallet/refund", dto.RefundRequest{UserID: userID, WagerRef: wagerRef})
}

// post envia o corpo e decodifica o saldo. Falha de transporte e 5xx viram
// TransientError; demais erros são reconstruídos pelo código.
func (c *Client) post(ctx context.Context, path string, in any) (decimal.Decimal, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return decimal.Zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, errs.Transient(err, "wallet "+path)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var eb httpx.ErrorBody
		_ = json.NewDecoder(res.Body).Decode(&eb)
		if res.StatusCode >= 500 && eb.Kind != string(errs.KindCompensation) {
			return decimal.Zero, errs.Transient(fmt.Errorf("wallet %s http %d: %s", path, res.StatusCode, eb.Error), "wallet "+path)
		}
		return decimal.Zero, errs.FromCode(errs.Kind(eb.Kind), eb.Code, eb.Error)
	}

	var out dto.BalanceResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return decimal.Zero, errs.Transient(err, "wallet "+path+": decode")
	}
	return out.Balance, nil
}
