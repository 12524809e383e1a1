package web

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoollib/internal/apperr"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{&apperr.Error{Kind: ErrInvalidPayload, Message: "x"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("get: %w", apperr.NotFound("Book not found")), http.StatusNotFound},
		{apperr.Conflict("dup"), http.StatusConflict},
		{apperr.Unavailable("none left"), http.StatusConflict},
		{apperr.Unauthorized("no"), http.StatusUnauthorized},
		{apperr.Forbidden("no"), http.StatusForbidden},
		{apperr.ErrRateLimited, http.StatusTooManyRequests},
		{apperr.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}

func TestErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/books", nil), fmt.Errorf("query: %w", assert.AnError))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal server error"}`, rec.Body.String())
}

func TestErrorWritesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/loans/x", nil), apperr.NotFound("Loan not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Loan not found"}`, rec.Body.String())
}

func TestParsePage(t *testing.T) {
	p, err := ParsePage(httptest.NewRequest(http.MethodGet, "/books", nil))
	require.NoError(t, err)
	assert.Equal(t, Page{Skip: 0, Limit: 50}, p)

	p, err = ParsePage(httptest.NewRequest(http.MethodGet, "/books?skip=10&limit=100", nil))
	require.NoError(t, err)
	assert.Equal(t, Page{Skip: 10, Limit: 100}, p)

	for _, q := range []string{"skip=-1", "limit=0", "limit=101", "skip=abc"} {
		_, err := ParsePage(httptest.NewRequest(http.MethodGet, "/books?"+q, nil))
		assert.Error(t, err, q)
	}
}

func TestDecodeValidates(t *testing.T) {
	var body struct {
		Title string `json:"title" validate:"required"`
	}
	r := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader(`{"title":""}`))
	err := Decode(r, &body)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(err))
	assert.Equal(t, "title is required", apperr.Message(err, ""))
}

func TestQueryTime(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/reports?start_date=2024-03-01", nil)
	got, err := QueryTime(r, "start_date")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2024, got.Year())

	r = httptest.NewRequest(http.MethodGet, "/reports?start_date=yesterday", nil)
	_, err = QueryTime(r, "start_date")
	assert.Error(t, err)
}
