// Package money reúne a regra de precisão dos valores monetários. As colunas
// de saldo, stake e payout são NUMERIC(18,2): valores com mais casas seriam
// arredondados pelo banco e o saldo deixaria de bater com os lançamentos.
package money

import "github.com/shopspring/decimal"

// Places é a precisão em casas decimais (centavos)
const Places = 2

// IsCents diz se d cabe em centavos sem arredondar. "10.500" passa.
func IsCents(d decimal.Decimal) bool { return d.Equal(d.Round(Places)) }

// Valid exige valor positivo em centavos
func Valid(d decimal.Decimal) bool { return d.IsPositive() && IsCents(d) }
