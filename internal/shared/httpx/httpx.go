// Package httpx reúne helpers de resposta e validação usados pelos servidores HTTP.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/radieske/sports-wager-engine/internal/shared/errs"
)

var validate = validator.New()

// ErrorBody é o formato de erro de todas as APIs
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Kind  string `json:"kind"`
}

// WriteJSON serializa e envia resposta JSON
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError traduz o erro para status + corpo a partir do Kind
func WriteError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	msg := err.Error()
	if kind == errs.KindInternal {
		msg = "internal error"
	}
	WriteJSON(w, errs.HTTPStatus(kind), ErrorBody{Error: msg, Code: errs.CodeOf(err), Kind: string(kind)})
}

// Decode lê o JSON do corpo e valida as tags `validate`
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.ErrInvalidRequest.With("bad json: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		return errs.ErrInvalidRequest.With("%v", err)
	}
	return nil
}
