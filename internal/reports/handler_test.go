package reports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
)

type fakeService struct {
	Service
	loans LoanFilter
	books BookFilter
	users UserFilter
	down  bool
}

func (f *fakeService) DashboardStats(context.Context) (*Dashboard, error) {
	if f.down {
		return nil, apperr.New(apperr.ErrServiceUnavailable, "Reports are temporarily unavailable")
	}
	return &Dashboard{}, nil
}

func (f *fakeService) LoansReport(_ context.Context, flt LoanFilter) (*LoansReport, error) {
	f.loans = flt
	return &LoansReport{}, nil
}

func (f *fakeService) BooksReport(_ context.Context, flt BookFilter) (*BooksReport, error) {
	f.books = flt
	return &BooksReport{}, nil
}

func (f *fakeService) UsersReport(_ context.Context, flt UserFilter) (*UsersReport, error) {
	f.users = flt
	return &UsersReport{}, nil
}

func get(h http.Handler, role auth.Role, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: uuid.New(), Role: role}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReportsRequireStaff(t *testing.T) {
	h := NewHandler(&fakeService{}).Routes()
	assert.Equal(t, http.StatusForbidden, get(h, auth.RoleStudent, "/dashboard-stats").Code)
	assert.Equal(t, http.StatusForbidden, get(h, auth.RoleTeacher, "/users-report").Code)
	assert.Equal(t, http.StatusOK, get(h, auth.RoleLibrarian, "/dashboard-stats").Code)
}

func TestLoansReportFilters(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc).Routes()

	rec := get(h, auth.RoleAdmin, "/loans-report?start_date=2024-01-01&end_date=2024-06-30T23:59:59Z&status=returned&user_role=teacher")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.loans.Start)
	require.NotNil(t, svc.loans.End)
	assert.Equal(t, 2024, svc.loans.Start.Year())
	assert.Equal(t, "returned", *svc.loans.Status)
	assert.Equal(t, auth.RoleTeacher, *svc.loans.UserRole)

	assert.Equal(t, http.StatusBadRequest, get(h, auth.RoleAdmin, "/loans-report?start_date=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest, get(h, auth.RoleAdmin, "/loans-report?user_role=janitor").Code)
}

func TestBooksReportAvailability(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc).Routes()

	require.Equal(t, http.StatusOK, get(h, auth.RoleAdmin, "/books-report").Code)
	assert.Equal(t, AvailabilityAll, svc.books.Availability)

	require.Equal(t, http.StatusOK, get(h, auth.RoleAdmin, "/books-report?availability=unavailable&category=BD").Code)
	assert.Equal(t, AvailabilityUnavailable, svc.books.Availability)
	assert.Equal(t, "BD", *svc.books.Category)

	assert.Equal(t, http.StatusBadRequest, get(h, auth.RoleAdmin, "/books-report?availability=some").Code)
}

func TestUsersReportFilters(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc).Routes()

	require.Equal(t, http.StatusOK, get(h, auth.RoleAdmin, "/users-report?role=student&class_name=CM2-A").Code)
	assert.Equal(t, auth.RoleStudent, *svc.users.Role)
	assert.Equal(t, "CM2-A", *svc.users.ClassName)
}

func TestOpenBreakerIs503(t *testing.T) {
	h := NewHandler(&fakeService{down: true}).Routes()
	rec := get(h, auth.RoleAdmin, "/dashboard-stats")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "temporarily unavailable")
}
