package membership

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/web"
)

type Handler struct {
	service Service
	issuer  *auth.Issuer
}

func NewHandler(service Service, issuer *auth.Issuer) *Handler {
	return &Handler{service: service, issuer: issuer}
}

// AuthRoutes serves /auth. Only /me needs a token.
func (h *Handler) AuthRoutes(authn func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.With(authn).Get("/me", h.handleMe)
	return r
}

// UserRoutes serves /users and expects an authenticated request.
func (h *Handler) UserRoutes() http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Require(auth.ViewUsers))
		r.Get("/", h.handleListUsers)
		r.Get("/stats", h.handleStats)
		r.Get("/{id}", h.handleGetUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Require(auth.ManageUsers))
		r.Post("/", h.handleCreateUser)
		r.Post("/bulk-import", h.handleBulkImport)
		r.Put("/{id}", h.handleUpdateUser)
		r.Delete("/{id}", h.handleDeleteUser)
	})
	return r
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        *User  `json:"user"`
}

// Self-registration only creates student accounts; staff accounts are
// created by an administrator.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req NewUser
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	if req.Role != auth.RoleStudent {
		web.Error(w, r, apperr.Forbidden("Only student accounts can self-register"))
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		web.Error(w, r, err)
		return
	}

	token, err := h.issuer.Issue(user.ID, user.Role)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.issuer.TTL().Seconds()),
		User:        user,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), p.UserID)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, user)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := web.ParsePage(r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	f := Filter{
		Page:      page,
		ClassName: web.QueryString(r, "class_name"),
		Search:    web.QueryString(r, "search"),
	}
	if v := web.QueryString(r, "role"); v != nil {
		role := auth.Role(*v)
		if !role.Valid() {
			web.Error(w, r, apperr.Validation("invalid role %q", *v))
			return
		}
		f.Role = &role
	}

	users, err := h.service.ListUsers(r.Context(), f)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, users)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, stats)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, user)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req NewUser
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusCreated, user)
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	var req UserUpdate
	if err := web.Decode(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, user)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := web.PathUUID(r, "id")
	if err != nil {
		web.Error(w, r, err)
		return
	}
	if p, _ := auth.FromContext(r.Context()); p.UserID == id {
		web.Error(w, r, apperr.Validation("Cannot delete your own account"))
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		web.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBulkImport(w http.ResponseWriter, r *http.Request) {
	var req []NewUser
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, r, err)
		return
	}
	res, err := h.service.BulkCreate(r.Context(), req)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, res)
}
