package transfer

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/reports"
	"schoollib/internal/web"
)

const maxUploadSize = 10 << 20

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes serves /import-export.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.With(auth.Require(auth.ImportBooks)).Post("/books/import", h.handleImportBooks)
	r.With(auth.Require(auth.ImportUsers)).Post("/users/import", h.handleImportUsers)
	r.With(auth.Require(auth.ExportBooks)).Get("/books/export", h.handleExportBooks)
	r.With(auth.Require(auth.ExportUsers)).Get("/users/export", h.handleExportUsers)
	r.With(auth.Require(auth.ExportLoans)).Get("/loans/export", h.handleExportLoans)
	r.Get("/template/{kind}", h.handleTemplate)
	return r
}

// upload opens the multipart field "file", which must be a .csv.
func upload(w http.ResponseWriter, r *http.Request) (multipart.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("File is too large")
		}
		return nil, apperr.Validation("A CSV file is required in field \"file\"")
	}
	if !strings.HasSuffix(strings.ToLower(hdr.Filename), ".csv") {
		file.Close()
		return nil, apperr.Validation("File must be a CSV")
	}
	return file, nil
}

func (h *Handler) handleImportBooks(w http.ResponseWriter, r *http.Request) {
	file, err := upload(w, r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	defer file.Close()

	res, err := h.service.ImportBooks(r.Context(), file)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, res)
}

func (h *Handler) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	file, err := upload(w, r)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	defer file.Close()

	res, err := h.service.ImportUsers(r.Context(), file)
	if err != nil {
		web.Error(w, r, err)
		return
	}
	web.Respond(w, http.StatusOK, res)
}

func (h *Handler) handleExportBooks(w http.ResponseWriter, r *http.Request) {
	out := &attachment{w: w, filename: "books_export.csv"}
	out.finish(r, h.service.ExportBooks(r.Context(), out, web.QueryString(r, "category")))
}

func (h *Handler) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	var role *auth.Role
	if v := web.QueryString(r, "role"); v != nil {
		rl := auth.Role(*v)
		if !rl.Valid() {
			web.Error(w, r, apperr.Validation("role must be one of admin, librarian, teacher, student"))
			return
		}
		role = &rl
	}
	out := &attachment{w: w, filename: "users_export.csv"}
	out.finish(r, h.service.ExportUsers(r.Context(), out, role))
}

func (h *Handler) handleExportLoans(w http.ResponseWriter, r *http.Request) {
	var f reports.LoanFilter
	var err error
	if f.Start, err = web.QueryTime(r, "start_date"); err != nil {
		web.Error(w, r, err)
		return
	}
	if f.End, err = web.QueryTime(r, "end_date"); err != nil {
		web.Error(w, r, err)
		return
	}
	f.Status = web.QueryString(r, "status")

	out := &attachment{w: w, filename: "loans_export.csv"}
	out.finish(r, h.service.ExportLoans(r.Context(), out, f))
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	out := &attachment{w: w, filename: string(kind) + "_import_template.csv"}
	out.finish(r, WriteTemplate(out, kind))
}

// attachment sends CSV headers on the first write, so a failure before
// any row is produced can still be answered with a JSON error.
type attachment struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (a *attachment) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		a.w.Header().Set("Content-Disposition", "attachment; filename="+a.filename)
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}

func (a *attachment) finish(r *http.Request, err error) {
	switch {
	case err == nil:
	case !a.started:
		web.Error(a.w, r, err)
	default:
		slog.ErrorContext(r.Context(), "csv export interrupted", "file", a.filename, "error", err)
	}
}
