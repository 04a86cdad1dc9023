package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/settlement/engine"
	"github.com/radieske/sports-wager-engine/internal/wager"
)

type WagerResponse struct {
	WagerID         string          `json:"wager_id"`
	UserID          string          `json:"user_id"`
	SelectionID     string          `json:"selection_id"`
	Stake           decimal.Decimal `json:"stake"`
	Odds            decimal.Decimal `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Status          string          `json:"status"`
	Payout          decimal.Decimal `json:"payout"`
	CreatedAt       time.Time       `json:"created_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
}

type LegResponse struct {
	LegNumber   int             `json:"leg_number"`
	SelectionID string          `json:"selection_id"`
	EventID     string          `json:"event_id"`
	Odds        decimal.Decimal `json:"odds"`
	Status      string          `json:"status"`
}

type ParlayResponse struct {
	ParlayID        string          `json:"parlay_id"`
	UserID          string          `json:"user_id"`
	Stake           decimal.Decimal `json:"stake"`
	PlacedOdds      decimal.Decimal `json:"placed_odds"`
	CombinedOdds    decimal.Decimal `json:"combined_odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Status          string          `json:"status"`
	Legs            []LegResponse   `json:"legs"`
	CreatedAt       time.Time       `json:"created_at"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
}

type ResolveResponse struct {
	SelectionID     string `json:"selection_id"`
	SettledSingles  int    `json:"settled_singles"`
	SettledLegs     int    `json:"settled_legs"`
	AffectedParlays int    `json:"affected_parlays"`
	SettledParlays  int    `json:"settled_parlays"`
	CreditFailures  int    `json:"credit_failures"`
}

func FromWager(w wager.Wager) WagerResponse {
	return WagerResponse{
		WagerID:         w.ID,
		UserID:          w.UserID,
		SelectionID:     w.SelectionID,
		Stake:           w.Stake,
		Odds:            w.Odds,
		PotentialPayout: w.PotentialPayout,
		Status:          string(w.Status),
		Payout:          w.Payout,
		CreatedAt:       w.CreatedAt,
		SettledAt:       w.SettledAt,
	}
}

func FromParlay(p wager.Parlay) ParlayResponse {
	legs := make([]LegResponse, len(p.Legs))
	for i, l := range p.Legs {
		legs[i] = LegResponse{LegNumber: l.LegNumber, SelectionID: l.SelectionID, EventID: l.EventID, Odds: l.Odds, Status: string(l.Status)}
	}
	return ParlayResponse{
		ParlayID:        p.ID,
		UserID:          p.UserID,
		Stake:           p.Stake,
		PlacedOdds:      p.PlacedOdds,
		CombinedOdds:    p.CombinedOdds,
		PotentialPayout: p.PotentialPayout,
		Status:          string(p.Status),
		Legs:            legs,
		CreatedAt:       p.CreatedAt,
		SettledAt:       p.SettledAt,
	}
}

func FromReport(selectionID string, r engine.Report) ResolveResponse {
	return ResolveResponse{
		SelectionID:     selectionID,
		SettledSingles:  r.SettledSingles,
		SettledLegs:     r.SettledLegs,
		AffectedParlays: r.AffectedParlays,
		SettledParlays:  r.SettledParlays,
		CreditFailures:  r.CreditFailures,
	}
}
