package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoollib/internal/auth"
	"schoollib/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes serves /books. Every caller must be authenticated; mutations
// need ManageBooks.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handleListBooks)
	r.Get("/{id}", h.handleGetBook)
	r.Group(func(r chi.Router) {
		r.Use(auth.Require(auth.ManageBooks))
		r.Post("/", h.handleCreateBook)
		r.Put("/{id}", h.handleUpdateBook)
		r.Delete("/{id}", h.handleDeleteBook)
	})
	return r
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := web.ParsePage(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	available, err := web.QueryBool(r, "available")
	if err != nil {
		web.Error(w, r, err)
		return
	}

	books, err := h.service.ListBooks(r.Context(), Filter{
		Page:      page,
		Search:    web.QueryString(r, "search"),
		Category:  web.QueryString(r, "category"),
		Available: available,
	})
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, books)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, book)
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req NewBook
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	book, err := h.service.CreateBook(r.Context(), req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req BookUpdate
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	book, err := h.service.UpdateBook(r.Context(), id, req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		web.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
