package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/rs/zerolog"

	"warden.dev/internal/auth"
	"warden.dev/internal/fault"
	"warden.dev/internal/keys"
)

const (
	codeForbidden   = "FORBIDDEN"
	codeNotFound    = "NOT_FOUND"
	codeConflict    = "CONFLICT"
	codeBadInput    = "BAD_INPUT"
	codeValidation  = "VALIDATION_FAILED"
	codeRateLimited = "RATE_LIMITED"
	codeInternal    = "INTERNAL"
)

type errorBody struct {
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toServiceError translates domain failures into boundary errors carrying
// the HTTP status and the stable code clients branch on.
func toServiceError(err error) *goerrors.Error {
	var svcErr *goerrors.Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	if fe, ok := fault.As(err); ok {
		return fromFault(fe)
	}
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
			WithCode(http.StatusForbidden).WithTextCode(codeForbidden)
	case errors.Is(err, auth.ErrNotFound):
		return goerrors.New(err.Error(), goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).WithTextCode(codeNotFound)
	case errors.Is(err, auth.ErrConflict):
		return goerrors.New(err.Error(), goerrors.CategoryConflict).
			WithCode(http.StatusConflict).WithTextCode(codeConflict)
	case errors.Is(err, keys.ErrInvalidInput), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalid):
		return goerrors.New(err.Error(), goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).WithTextCode(codeBadInput)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "internal error").
		WithCode(http.StatusInternalServerError).WithTextCode(codeInternal)
}

func fromFault(fe *fault.Error) *goerrors.Error {
	var (
		status   int
		category goerrors.Category
	)
	switch {
	case fe.Code == fault.CodePrincipalInactive:
		status, category = http.StatusForbidden, goerrors.CategoryAuthz
	case fe.Code == fault.CodeKeyNotFound, fe.Code == fault.CodeNoActiveKey:
		status, category = http.StatusNotFound, goerrors.CategoryNotFound
	case fe.Kind == fault.KindConflict:
		status, category = http.StatusConflict, goerrors.CategoryConflict
	default:
		status, category = http.StatusUnauthorized, goerrors.CategoryAuth
	}
	return goerrors.New(fe.Message, category).WithCode(status).WithTextCode(fe.Code)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, svcErr *goerrors.Error) {
	body := errorBody{Error: errorDetail{Code: svcErr.TextCode, Message: svcErr.Message}}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		body.RequestID = rid
	}
	writeJSON(w, svcErr.Code, body)
}

// writeError maps err and writes the failure envelope. Internal failures
// are logged and never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := toServiceError(err)
	if svcErr.Code >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeServiceError(w, r, svcErr)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeServiceError(w, r, goerrors.New(msg, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).WithTextCode(codeBadInput))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
