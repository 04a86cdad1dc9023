// Package errs define a taxonomia de erros compartilhada entre os serviços.
// Todo erro que chega a um handler deve ter um Kind para o gateway distinguir
// "corrija a entrada" de "tente de novo" de "saldo insuficiente".
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindState        Kind = "state"
	KindTransient    Kind = "transient"
	KindCompensation Kind = "compensation_failure"
	KindInternal     Kind = "internal"
)

// Error carrega o tipo, um código estável e a causa (opcional)
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara por código, permitindo errors.Is(err, ErrMarketNotOpen) mesmo
// quando o erro foi reconstruído a partir de uma resposta HTTP.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With devolve uma cópia do sentinela com mensagem específica
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Msg: fmt.Sprintf(format, args...), Err: e.Err}
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrInvalidStake         = newErr(KindValidation, "invalid_stake", "stake must be greater than 0 with at most 2 decimal places")
	ErrInvalidOdds          = newErr(KindValidation, "invalid_odds", "odds must be greater than 1.0")
	ErrInvalidAmount        = newErr(KindValidation, "invalid_amount", "amount must be greater than 0 with at most 2 decimal places")
	ErrTooFewLegs           = newErr(KindValidation, "too_few_legs", "at least 2 selections are required for a parlay")
	ErrCorrelatedSelections = newErr(KindValidation, "correlated_selections", "cannot combine selections from the same event in a parlay")
	ErrInvalidRequest       = newErr(KindValidation, "invalid_request", "invalid request")
	ErrIdempotencyKeyReused = newErr(KindValidation, "idempotency_key_reused", "idempotency key already used for a different wager")

	ErrSelectionNotFound = newErr(KindNotFound, "selection_not_found", "selection not found")
	ErrAccountNotFound   = newErr(KindNotFound, "account_not_found", "account not found")
	ErrWagerNotFound     = newErr(KindNotFound, "wager_not_found", "wager not found")

	ErrMarketNotOpen        = newErr(KindState, "market_not_open", "market is not open for betting")
	ErrInsufficientFunds    = newErr(KindState, "insufficient_funds", "insufficient balance")
	ErrInvalidTransition    = newErr(KindState, "invalid_transition", "invalid status transition")
	ErrReservationCancelled = newErr(KindState, "reservation_cancelled", "reservation already refunded")

	ErrOracleUnavailable = newErr(KindTransient, "oracle_unavailable", "price oracle unavailable")
)

// Transient classifica uma falha de I/O (rede, banco, timeout)
func Transient(err error, msg string) *Error {
	return &Error{Kind: KindTransient, Code: "transient", Msg: msg, Err: err}
}

// Compensation sinaliza o único cenário que exige reconciliação manual:
// reserva efetuada, criação da aposta falhou e o estorno também falhou.
func Compensation(err error, wagerID string) *Error {
	return &Error{Kind: KindCompensation, Code: "compensation_failure", Msg: "compensating refund failed for wager " + wagerID, Err: err}
}

// KindOf retorna o Kind do primeiro *Error na cadeia; erros não
// classificados contam como internos.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf retorna o código do primeiro *Error na cadeia
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// IsRetryable indica se o chamador deve repetir com a mesma chave de idempotência
func IsRetryable(err error) bool { return KindOf(err) == KindTransient }

func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindState:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromCode reconstrói um erro recebido de outro serviço. Códigos
// conhecidos viram o sentinela correspondente; desconhecidos mantêm o kind.
func FromCode(kind Kind, code, msg string) *Error {
	if s, ok := byCode[code]; ok {
		if msg == "" {
			return s
		}
		return s.With("%s", msg)
	}
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var byCode = map[string]*Error{}

func init() {
	for _, e := range []*Error{
		ErrInvalidStake, ErrInvalidOdds, ErrInvalidAmount, ErrTooFewLegs, ErrCorrelatedSelections, ErrInvalidRequest,
		ErrIdempotencyKeyReused,
		ErrSelectionNotFound, ErrAccountNotFound, ErrWagerNotFound,
		ErrMarketNotOpen, ErrInsufficientFunds, ErrInvalidTransition, ErrReservationCancelled,
		ErrOracleUnavailable,
	} {
		byCode[e.Code] = e
	}
}
