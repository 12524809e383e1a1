package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/catalog"
	"schoollib/internal/config"
	"schoollib/internal/membership"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeMembers struct {
	membership.Service
	principals map[uuid.UUID]auth.Principal
}

func (f *fakeMembers) LoadPrincipal(_ context.Context, id uuid.UUID) (auth.Principal, error) {
	p, ok := f.principals[id]
	if !ok {
		return auth.Principal{}, apperr.NotFound("User not found")
	}
	return p, nil
}

type fakeCatalog struct{ catalog.Service }

func (fakeCatalog) ListBooks(context.Context, catalog.Filter) ([]catalog.Book, error) {
	return []catalog.Book{{ID: uuid.New(), Title: "Le Petit Prince"}}, nil
}

type fixture struct {
	handler http.Handler
	issuer  *auth.Issuer
	members *fakeMembers
}

func newFixture(t *testing.T, db Pinger) *fixture {
	t.Helper()
	f := &fixture{
		issuer:  auth.NewIssuer("server-test-secret-0123456789", time.Hour),
		members: &fakeMembers{principals: map[uuid.UUID]auth.Principal{}},
	}
	f.handler = NewRouter(Deps{
		Config:  config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}},
		Issuer:  f.issuer,
		Members: f.members,
		Catalog: fakeCatalog{},
		DB:      db,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	return f
}

func (f *fixture) token(t *testing.T, role auth.Role) string {
	t.Helper()
	id := uuid.New()
	f.members.principals[id] = auth.Principal{UserID: id, Username: string(role), Role: role}
	tok, err := f.issuer.Issue(id, role)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := newFixture(t, fakePinger{}).do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = newFixture(t, fakePinger{err: errors.New("down")}).do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture(t, fakePinger{}).do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newFixture(t, fakePinger{})

	for _, path := range []string{"/books", "/loans", "/reservations", "/users", "/reports/dashboard-stats", "/audit/events"} {
		rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestAuthenticatedBookList(t *testing.T) {
	f := newFixture(t, fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, auth.RoleStudent))
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var books []catalog.Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "Le Petit Prince", books[0].Title)
}

func TestAuditRequiresAdmin(t *testing.T) {
	f := newFixture(t, fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/audit/events", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, auth.RoleLibrarian))
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/audit/events?limit=0", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, auth.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/audit/events?after=-3", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, auth.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, fakePinger{})

	req := httptest.NewRequest(http.MethodOptions, "/books", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := f.do(req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/books", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	assert.Empty(t, f.do(req).Header().Get("Access-Control-Allow-Origin"))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
			http.NotFoundHandler(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
