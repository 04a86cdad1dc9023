package money_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-wager-engine/internal/shared/money"
)

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"10", true},
		{"10.5", true},
		{"10.50", true},
		{"10.500", true},
		{"0.01", true},
		{"10.005", false},
		{"0.001", false},
		{"0", false},
		{"-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := money.Valid(decimal.RequireFromString(tt.in)); got != tt.want {
				t.Fatalf("Valid(%s) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
