package wager

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/money"
)

// MoneyPlaces é a precisão de valores monetários (centavos)
const MoneyPlaces = money.Places

var one = decimal.NewFromInt(1)

// CombinedOdds é o produto das odds; lista vazia resulta em 1.
func CombinedOdds(odds []decimal.Decimal) decimal.Decimal {
	acc := one
	for _, o := range odds {
		acc = acc.Mul(o)
	}
	return acc
}

// Payout = stake × odds, arredondado para centavos
func Payout(stake, odds decimal.Decimal) decimal.Decimal {
	return stake.Mul(odds).Round(MoneyPlaces)
}

// Outcome é o resultado de uma avaliação de múltipla
type Outcome struct {
	Status       ParlayStatus
	CombinedOdds decimal.Decimal
	Payout       decimal.Decimal // valor a creditar; zero em lost/pending
}

// Evaluate aplica as regras, nesta ordem:
//  1. qualquer perna lost -> lost (domina void);
//  2. todas settled e won -> won com o payout original;
//  3. todas settled, alguma void, restantes won -> partially-void com odds
//     recalculadas sobre as pernas não anuladas (todas void -> void, odds 1);
//  4. caso contrário pending.
func Evaluate(p Parlay) Outcome {
	pending := Outcome{Status: ParlayPending, CombinedOdds: p.CombinedOdds, Payout: decimal.Zero}

	var anyPending, anyVoid bool
	for _, l := range p.Legs {
		switch l.Status {
		case LegLost:
			return Outcome{Status: ParlayLost, CombinedOdds: p.CombinedOdds, Payout: decimal.Zero}
		case LegPending:
			anyPending = true
		case LegVoid:
			anyVoid = true
		}
	}
	if anyPending || len(p.Legs) == 0 {
		return pending
	}
	if !anyVoid {
		return Outcome{Status: ParlayWon, CombinedOdds: p.CombinedOdds, Payout: p.PotentialPayout}
	}

	// só restam won e void
	var live []decimal.Decimal
	for _, l := range p.Legs {
		if l.Status == LegWon {
			live = append(live, l.Odds)
		}
	}
	odds := CombinedOdds(live)
	status := ParlayPartiallyVoid
	if len(live) == 0 {
		status = ParlayVoid
	}
	return Outcome{Status: status, CombinedOdds: odds, Payout: Payout(p.Stake, odds)}
}
