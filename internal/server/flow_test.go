package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"schoollib/internal/auth"
	"schoollib/internal/catalog"
	"schoollib/internal/circulation"
	"schoollib/internal/config"
	"schoollib/internal/eventlog"
	"schoollib/internal/membership"
	"schoollib/internal/reports"
	"schoollib/internal/reservation"
	"schoollib/internal/store/storetest"
	"schoollib/internal/transfer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type suite struct {
	t       *testing.T
	srv     *httptest.Server
	members membership.Service
}

func setupSuite(t *testing.T) *suite {
	db := storetest.Open(t)
	logger := storetest.Logger()

	events := eventlog.New(db)
	members := membership.NewService(db, events, rate.NewLimiter(rate.Inf, 0), logger)
	books := catalog.NewService(db, events, logger)
	loans, err := circulation.NewService(db, events, books, members, circulation.Options{FinePerDay: 0.5}, logger)
	require.NoError(t, err)
	rep := reports.NewService(db, config.ReportsConfig{}, logger)

	srv := httptest.NewServer(NewRouter(Deps{
		Config:       config.ServerConfig{CORSOrigins: []string{"*"}},
		Issuer:       auth.NewIssuer("flow-test-secret-0123456789", time.Hour),
		Members:      members,
		Catalog:      books,
		Circulation:  loans,
		Reservations: reservation.NewService(db, events, books, members, logger),
		Reports:      rep,
		Transfer:     transfer.NewService(books, members, rep, logger),
		Events:       events,
		DB:           db,
	}))
	t.Cleanup(srv.Close)
	return &suite{t: t, srv: srv, members: members}
}

func (s *suite) call(method, path, token string, body, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *suite) login(username, password string) string {
	s.t.Helper()
	var tok membership.Token
	code := s.call(http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password}, &tok)
	require.Equal(s.t, http.StatusOK, code)
	return tok.AccessToken
}

func (s *suite) staff(username string, role auth.Role) string {
	s.t.Helper()
	_, err := s.members.CreateUser(context.Background(), membership.NewUser{
		Username: username, Email: username + "@ecole.fr", FullName: "Staff " + username,
		Role: role, Password: "staffpass",
	})
	require.NoError(s.t, err)
	return s.login(username, "staffpass")
}

func (s *suite) student(i int) membership.User {
	s.t.Helper()
	var u membership.User
	code := s.call(http.MethodPost, "/auth/register", "", map[string]any{
		"username": fmt.Sprintf("eleve%d", i), "email": fmt.Sprintf("eleve%d@ecole.fr", i),
		"full_name": fmt.Sprintf("Eleve %d", i), "role": "student", "password": "eleve123",
	}, &u)
	require.Equal(s.t, http.StatusCreated, code)
	return u
}

func (s *suite) book(token, title string, copies int) catalog.Book {
	s.t.Helper()
	var b catalog.Book
	code := s.call(http.MethodPost, "/books", token, map[string]any{
		"title": title, "authors": []string{"Jules Verne"}, "total_copies": copies,
	}, &b)
	require.Equal(s.t, http.StatusCreated, code)
	return b
}

func TestLoanFlow(t *testing.T) {
	s := setupSuite(t)
	librarian := s.staff("bibliothecaire", auth.RoleLibrarian)
	pupil := s.student(1)
	book := s.book(librarian, "Vingt mille lieues sous les mers", 5)

	var loan circulation.LoanView
	code := s.call(http.MethodPost, "/loans", librarian, map[string]any{"user_id": pupil.ID, "book_id": book.ID}, &loan)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, circulation.StatusBorrowed, loan.Status)

	var got catalog.Book
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/books/"+book.ID.String(), librarian, nil, &got))
	assert.Equal(t, 4, got.AvailableCopies)

	// The borrower sees the loan in their own list.
	pupilToken := s.login("eleve1", "eleve123")
	var mine []circulation.LoanView
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/loans/my", pupilToken, nil, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, loan.ID, mine[0].ID)
	assert.Equal(t, http.StatusForbidden, s.call(http.MethodPost, "/loans", pupilToken, map[string]any{"user_id": pupil.ID, "book_id": book.ID}, nil))

	var returned circulation.LoanView
	require.Equal(t, http.StatusOK, s.call(http.MethodPut, "/loans/"+loan.ID.String()+"/return", librarian, nil, &returned))
	assert.Equal(t, circulation.StatusReturned, returned.Status)
	assert.Equal(t, http.StatusNotFound, s.call(http.MethodPut, "/loans/"+loan.ID.String()+"/return", librarian, nil, nil))

	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/books/"+book.ID.String(), librarian, nil, &got))
	assert.Equal(t, 5, got.AvailableCopies)
}

func TestConcurrentLoansPreventDoubleBooking(t *testing.T) {
	s := setupSuite(t)
	librarian := s.staff("bibliothecaire", auth.RoleLibrarian)
	book := s.book(librarian, "Le Tour du monde en 80 jours", 1)

	var pupils []membership.User
	for i := range 10 {
		pupils = append(pupils, s.student(i))
	}

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for _, p := range pupils {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{"user_id": p.ID, "book_id": book.ID})
			req, _ := http.NewRequest(http.MethodPost, s.srv.URL+"/loans", bytes.NewReader(body))
			req.Header.Set("Authorization", "Bearer "+librarian)
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.srv.Client().Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusCreated {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load(), "only one concurrent loan should succeed")

	var got catalog.Book
	require.Equal(t, http.StatusOK, s.call(http.MethodGet, "/books/"+book.ID.String(), librarian, nil, &got))
	assert.Equal(t, 0, got.AvailableCopies)
}
