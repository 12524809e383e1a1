package reservation

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

// createRequest reserves a book. UserID is honoured for staff only;
// everyone else reserves for themselves.
type createRequest struct {
	BookID uuid.UUID  `json:"book_id" validate:"required"`
	UserID *uuid.UUID `json:"user_id"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Put("/{id}/cancel", h.handleCancel)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var req createRequest
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	userID := p.UserID
	if req.UserID != nil && *req.UserID != p.UserID {
		if !p.Can(auth.ViewAllReservations) {
			web.Error(w, r, apperr.Forbidden("Not enough permissions"))
			return
		}
		userID = *req.UserID
	}

	res, err := h.service.CreateReservation(r.Context(), userID, req.BookID)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusCreated, res)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
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
	if f.BookID, err = web.QueryUUID(r, "book_id"); err != nil {
		web.Error(w, r, err)
		return
	}
	if !p.Can(auth.ViewAllReservations) {
		f.UserID = &p.UserID
	}

	list, err := h.service.ListReservations(r.Context(), f)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, list)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	existing, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if existing.UserID != p.UserID && !p.Can(auth.ViewAllReservations) {
		web.Error(w, r, apperr.Forbidden("Not enough permissions"))
		return
	}

	res, err := h.service.CancelReservation(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, res)
}
