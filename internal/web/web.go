// Package web holds the JSON plumbing shared by every HTTP handler.
package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"schoollib/internal/apperr"
	"schoollib/internal/store"
	"schoollib/internal/validation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidPayload marks request bodies that cannot be decoded or fail
// struct validation. It answers 422 rather than 400.
var ErrInvalidPayload = errors.New("invalid payload")

const maxBodyBytes = 1 << 20

// Respond writes v as JSON with the given status.
func Respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

// DecodeJSON reads a JSON body into v without validating it.
func DecodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return &apperr.Error{Kind: ErrInvalidPayload, Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// Decode reads a JSON body into the struct v and validates it.
func Decode(r *http.Request, v any) error {
	if err := DecodeJSON(r, v); err != nil {
		return err
	}
	if err := validation.Struct(v); err != nil {
		return &apperr.Error{Kind: ErrInvalidPayload, Message: apperr.Message(err, err.Error())}
	}
	return nil
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Error maps err onto a status code and writes {"detail": ...}.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	msg := apperr.Message(err, http.StatusText(status))
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	Respond(w, status, errorBody{Detail: msg})
}

func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrUnavailable):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Page = store.Page

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ParsePage reads skip (>= 0) and limit (1..100, default 50).
func ParsePage(r *http.Request) (Page, error) {
	p := Page{Limit: DefaultLimit}
	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Page{}, apperr.Validation("skip must be a non-negative integer")
		}
		p.Skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			return Page{}, apperr.Validation("limit must be between 1 and %d", MaxLimit)
		}
		p.Limit = n
	}
	return p, nil
}

// PathUUID parses a chi URL parameter as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// QueryUUID parses an optional UUID query parameter.
func QueryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, apperr.Validation("invalid %s", name)
	}
	return &id, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, apperr.Validation("%s must be true or false", name)
	}
	return &b, nil
}

// QueryTime parses an optional RFC 3339 timestamp or YYYY-MM-DD date.
func QueryTime(r *http.Request, name string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("%s must be an ISO 8601 date", name)
}

// QueryString returns a trimmed optional query parameter.
func QueryString(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil
	}
	return &v
}
