package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/shared/httpx"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/internal/wallet-service/dto"
	"github.com/radieske/sports-wager-engine/internal/wallet-service/repo"
)

// Server expõe o ledger via HTTP
type Server struct {
	log    *zap.Logger
	ledger repo.Ledger
}

// NewServer instancia o servidor HTTP da wallet
func NewServer(log *zap.Logger, ledger repo.Ledger) *Server {
	return &Server{log: log, ledger: ledger}
}

// Router retorna o router chi com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, metrics.Middleware)

	r.Get("/wallet/{userId}", s.getAccount)
	r.Get("/wallet/{userId}/transactions", s.transactions)
	r.Post("/wallet/deposit", s.deposit)
	r.Post("/wallet/withdraw", s.withdraw)
	r.Post("/wallet/reserve", s.reserve)
	r.Post("/wallet/credit", s.credit)
	r.Post("/wallet/refund", s.refund)
	return r
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.ledger.Balance(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.AccountResponse{
		UserID: a.UserID, Balance: a.Balance, Currency: a.Currency, CreatedAt: a.CreatedAt,
	})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	txs, err := s.ledger.Transactions(r.Context(), chi.URLParam(r, "userId"), limit, offset)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]dto.TransactionResponse, len(txs))
	for i, t := range txs {
		out[i] = dto.TransactionResponse{ID: t.ID, Kind: string(t.Kind), Amount: t.Amount, WagerRef: t.WagerRef, CreatedAt: t.CreatedAt}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// deposit abre a conta se necessário e adiciona saldo
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if _, err := s.ledger.OpenAccount(r.Context(), req.UserID, req.Currency); err != nil {
		httpx.WriteError(w, err)
		return
	}
	bal, err := s.ledger.Deposit(r.Context(), req.UserID, req.Amount, req.Ref)
	s.respond(w, "deposit", req.UserID, bal, err)
	if err == nil {
		s.log.Info("deposit", zap.String("user_id", req.UserID), zap.String("amount", req.Amount.String()))
	}
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	bal, err := s.ledger.Withdraw(r.Context(), req.UserID, req.Amount, req.Ref)
	s.respond(w, "withdraw", req.UserID, bal, err)
}

func (s *Server) reserve(w http.ResponseWriter, r *http.Request) {
	var req dto.ReserveRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	bal, err := s.ledger.Reserve(r.Context(), req.UserID, req.Amount, req.WagerRef)
	s.respond(w, "reserve", req.UserID, bal, err)
}

func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	bal, err := s.ledger.Credit(r.Context(), req.UserID, req.Amount, req.WagerRef)
	s.respond(w, "credit", req.UserID, bal, err)
}

func (s *Server) refund(w http.ResponseWriter, r *http.Request) {
	var req dto.RefundRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	bal, err := s.ledger.Refund(r.Context(), req.UserID, req.WagerRef)
	s.respond(w, "refund", req.UserID, bal, err)
}

func (s *Server) respond(w http.ResponseWriter, op, userID string, balance decimal.Decimal, err error) {
	if err != nil {
		metrics.LedgerOps.WithLabelValues(op, "error").Inc()
		s.log.Warn("ledger op failed", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
		httpx.WriteError(w, err)
		return
	}
	metrics.LedgerOps.WithLabelValues(op, "ok").Inc()
	httpx.WriteJSON(w, http.StatusOK, dto.BalanceResponse{UserID: userID, Balance: balance})
}
