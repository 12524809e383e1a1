package circulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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

type createLoanRequest struct {
	UserID  uuid.UUID `json:"user_id" validate:"required"`
	BookID  uuid.UUID `json:"book_id" validate:"required"`
	DueDays int       `json:"due_days" validate:"omitempty,min=1,max=90"`
}

// Routes serves /loans. Students only ever see their own loans.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handleListLoans)
	r.Get("/my", h.handleMyLoans)
	r.Get("/{id}", h.handleGetLoan)
	r.Group(func(r chi.Router) {
		r.Use(auth.Require(auth.Circulate))
		r.Post("/", h.handleCreateLoan)
		r.Put("/{id}/return", h.handleReturnLoan)
		r.Get("/{id}/events", h.handleLoanEvents)
	})
	return r
}

func (h *Handler) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	loan, err := h.service.CreateLoan(r.Context(), req.UserID, req.BookID, req.DueDays)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, *loan)
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	page, err := web.ParsePage(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	f := Filter{Page: page}
	if f.UserID, err = web.QueryUUID(r, "user_id"); err != nil {
		web.Error(w, r, err)
		return
	}
	if f.Status, err = queryStatus(r); err != nil {
		web.Error(w, r, err)
		return
	}
	if !p.Can(auth.ViewAllLoans) {
		f.UserID = &p.UserID
	}
	h.list(w, r, f)
}

func (h *Handler) handleMyLoans(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	page, err := web.ParsePage(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	status, err := queryStatus(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	h.list(w, r, Filter{Page: page, UserID: &p.UserID, Status: status})
}

func queryStatus(r *http.Request) (*Status, error) {
	s := web.QueryString(r, "status")
	if s == nil {
		return nil, nil
	}
	status := Status(*s)
	if !status.Valid() {
		return nil, apperr.Validation("status must be one of borrowed, overdue, returned")
	}
	return &status, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f Filter) {
	p, _ := auth.FromContext(r.Context())
	loans, err := h.service.ListLoans(r.Context(), f)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	views, err := h.service.Enrich(r.Context(), loans, p.Can(auth.ViewAllLoans))
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, views)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if !p.Can(auth.ViewAllLoans) && loan.UserID != p.UserID {
		web.Error(w, r, apperr.Forbidden("Not enough permissions"))
		return
	}
	h.respond(w, r, http.StatusOK, *loan)
}

func (h *Handler) handleReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	loan, err := h.service.ReturnLoan(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, *loan)
}

func (h *Handler) handleLoanEvents(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	events, err := h.service.History(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, events)
}

// respond writes one enriched loan.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, loan Loan) {
	p, _ := auth.FromContext(r.Context())
	views, err := h.service.Enrich(r.Context(), []Loan{loan}, p.Can(auth.ViewAllLoans))
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, status, views[0])
}
