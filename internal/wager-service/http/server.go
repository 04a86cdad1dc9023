package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/settlement/engine"
	"github.com/radieske/sports-wager-engine/internal/shared/errs"
	"github.com/radieske/sports-wager-engine/internal/shared/httpx"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/internal/wager-service/dto"
	"github.com/radieske/sports-wager-engine/internal/wager-service/placement"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
	"github.com/radieske/sports-wager-engine/pkg/contracts/events"
)

// HeaderUserID é preenchido pelo gateway com o usuário autenticado
const HeaderUserID = "X-User-ID"

type Placer interface {
	PlaceSingle(ctx context.Context, req placement.SingleRequest) (wager.Wager, error)
	PlaceParlay(ctx context.Context, req placement.ParlayRequest) (wager.Parlay, error)
}

type Settler interface {
	Resolve(ctx context.Context, ev events.SelectionResolved) (engine.Report, error)
	CashOut(ctx context.Context, wagerID, userID string, amount decimal.Decimal) (wager.Wager, error)
}

type Server struct {
	log    *zap.Logger
	place  Placer
	store  repo.Store
	settle Settler
	ws     http.HandlerFunc // opcional
}

func NewServer(log *zap.Logger, p Placer, st repo.Store, s Settler, ws http.HandlerFunc) *Server {
	return &Server{log: log, place: p, store: st, settle: s, ws: ws}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, metrics.Middleware)

	r.Post("/wagers", s.placeWager)
	r.Get("/wagers/{id}", s.getWager)
	r.Post("/wagers/{id}/cash-out", s.cashOut)
	r.Post("/parlays", s.placeParlay)
	r.Get("/parlays/{id}", s.getParlay)
	r.Get("/users/{userId}/wagers", s.listWagers)
	r.Get("/users/{userId}/parlays", s.listParlays)
	r.Post("/internal/selections/{id}/resolve", s.resolve)
	if s.ws != nil {
		r.Get("/ws", s.ws)
	}
	return r
}

// principal lê o usuário do header; obrigatório nas rotas de escrita
func principal(r *http.Request) (string, error) {
	u := r.Header.Get(HeaderUserID)
	if u == "" {
		return "", errs.ErrInvalidRequest.With("%s header required", HeaderUserID)
	}
	return u, nil
}

// idempotencyKey aceita apenas UUID, que vira o id da aposta
func idempotencyKey(r *http.Request) (string, error) {
	k := r.Header.Get("Idempotency-Key")
	if k == "" {
		return "", nil
	}
	id, err := uuid.Parse(k)
	if err != nil {
		return "", errs.ErrInvalidRequest.With("Idempotency-Key must be a UUID")
	}
	return id.String(), nil
}

// visible esconde registros de outro usuário; sem header a chamada é interna
func visible(r *http.Request, owner string) bool {
	u := r.Header.Get(HeaderUserID)
	return u == "" || u == owner
}

func (s *Server) placeWager(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var req dto.PlaceWagerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	wg, err := s.place.PlaceSingle(r.Context(), placement.SingleRequest{
		IdempotencyKey: key, UserID: user, SelectionID: req.SelectionID, Stake: req.Stake,
	})
	if err != nil {
		s.log.Info("place wager rejected", zap.String("user_id", user), zap.String("code", errs.CodeOf(err)))
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.FromWager(wg))
}

func (s *Server) placeParlay(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var req dto.PlaceParlayRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	p, err := s.place.PlaceParlay(r.Context(), placement.ParlayRequest{
		IdempotencyKey: key, UserID: user, SelectionIDs: req.SelectionIDs, Stake: req.Stake,
	})
	if err != nil {
		s.log.Info("place parlay rejected", zap.String("user_id", user), zap.String("code", errs.CodeOf(err)))
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.FromParlay(p))
}

func (s *Server) getWager(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wg, err := s.store.GetSingle(r.Context(), id)
	if err == nil && !visible(r, wg.UserID) {
		err = errs.ErrWagerNotFound.With("wager %s not found", id)
	}
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWager(wg))
}

func (s *Server) getParlay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.store.GetParlay(r.Context(), id)
	if err == nil && !visible(r, p.UserID) {
		err = errs.ErrWagerNotFound.With("parlay %s not found", id)
	}
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromParlay(p))
}

func listFilter(r *http.Request) repo.ListFilter {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return repo.ListFilter{Status: q.Get("status"), Limit: limit, Offset: offset}
}

func (s *Server) listWagers(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	if !visible(r, user) {
		httpx.WriteJSON(w, http.StatusOK, []dto.WagerResponse{})
		return
	}
	ws, err := s.store.ListSinglesByUser(r.Context(), user, listFilter(r))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]dto.WagerResponse, len(ws))
	for i, wg := range ws {
		out[i] = dto.FromWager(wg)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) listParlays(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "userId")
	if !visible(r, user) {
		httpx.WriteJSON(w, http.StatusOK, []dto.ParlayResponse{})
		return
	}
	ps, err := s.store.ListParlaysByUser(r.Context(), user, listFilter(r))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]dto.ParlayResponse, len(ps))
	for i, p := range ps {
		out[i] = dto.FromParlay(p)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) cashOut(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var req dto.CashOutRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	wg, err := s.settle.CashOut(r.Context(), chi.URLParam(r, "id"), user, req.Amount)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromWager(wg))
}

// resolve liquida de forma síncrona; o mesmo caminho do consumer Kafka
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	rep, err := s.settle.Resolve(r.Context(), events.SelectionResolved{
		SelectionID: id, Won: req.Won, Void: req.Void, Ts: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("resolve selection", zap.String("selection_id", id), zap.Error(err))
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromReport(id, rep))
}
