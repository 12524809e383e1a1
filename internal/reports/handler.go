package reports

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Require(auth.ViewReports))
	r.Get("/dashboard-stats", h.handleDashboard)
	r.Get("/loans-report", h.handleLoans)
	r.Get("/books-report", h.handleBooks)
	r.Get("/users-report", h.handleUsers)
	return r
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.DashboardStats(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, d)
}

func (h *Handler) handleLoans(w http.ResponseWriter, r *http.Request) {
	var f LoanFilter
	var err error
	if f.Start, err = web.QueryTime(r, "start_date"); err != nil {
		web.Error(w, r, err)
		return
	}
	if f.End, err = web.QueryTime(r, "end_date"); err != nil {
		web.Error(w, r, err)
		return
	}
	if f.UserRole, err = queryRole(r, "user_role"); err != nil {
		web.Error(w, r, err)
		return
	}
	f.Status = web.QueryString(r, "status")

	rep, err := h.service.LoansReport(r.Context(), f)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, rep)
}

func (h *Handler) handleBooks(w http.ResponseWriter, r *http.Request) {
	f := BookFilter{Category: web.QueryString(r, "category"), Availability: AvailabilityAll}
	if a := web.QueryString(r, "availability"); a != nil {
		f.Availability = Availability(*a)
		if !f.Availability.Valid() {
			web.Error(w, r, apperr.Validation("availability must be one of available, unavailable, all"))
			return
		}
	}

	rep, err := h.service.BooksReport(r.Context(), f)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, rep)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	role, err := queryRole(r, "role")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	rep, err := h.service.UsersReport(r.Context(), UserFilter{Role: role, ClassName: web.QueryString(r, "class_name")})
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, rep)
}

func queryRole(r *http.Request, name string) (*auth.Role, error) {
	v := web.QueryString(r, name)
	if v == nil {
		return nil, nil
	}
	role := auth.Role(*v)
	if !role.Valid() {
		return nil, apperr.Validation("%s must be one of admin, librarian, teacher, student", name)
	}
	return &role, nil
}
