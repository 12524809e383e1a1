package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
)

type fakeService struct {
	Service
	filter  Filter
	created []NewBook
}

func (f *fakeService) ListBooks(_ context.Context, flt Filter) ([]Book, error) {
	f.filter = flt
	return []Book{}, nil
}

func (f *fakeService) CreateBook(_ context.Context, c NewBook) (*Book, error) {
	f.created = append(f.created, c)
	return &Book{ID: uuid.New(), Title: c.Title, TotalCopies: c.TotalCopies, AvailableCopies: c.TotalCopies}, nil
}

func (f *fakeService) DeleteBook(_ context.Context, _ uuid.UUID) error {
	return apperr.Conflict("Cannot delete book with active loans")
}

func as(role auth.Role, req *http.Request) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: uuid.New(), Role: role}))
}

func TestListBooksParsesQuery(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, as(auth.RoleStudent, httptest.NewRequest(http.MethodGet, "/?search=prince&category=Roman&available=false&skip=5", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "prince", *svc.filter.Search)
	assert.Equal(t, "Roman", *svc.filter.Category)
	assert.False(t, *svc.filter.Available)
	assert.Equal(t, 5, svc.filter.Page.Skip)
	assert.Equal(t, 50, svc.filter.Page.Limit)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, as(auth.RoleStudent, httptest.NewRequest(http.MethodGet, "/?available=maybe", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookRequiresManageBooks(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc).Routes()
	body := `{"title":"Le Petit Prince","authors":["Antoine de Saint-Exupéry"],"total_copies":2}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, as(auth.RoleTeacher, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, as(auth.RoleLibrarian, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))))
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.created, 1)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, as(auth.RoleLibrarian, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x","authors":[],"total_copies":1}`))))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteBookConflict(t *testing.T) {
	h := NewHandler(&fakeService{}).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, as(auth.RoleAdmin, httptest.NewRequest(http.MethodDelete, "/"+uuid.NewString(), nil)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "active loans")
}
