package transfer

import "schoollib/internal/auth"

// RowError reports one rejected CSV row. Row 1 is the header.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// BookImportResult counts what a books import did. Matching rows add
// copies to the existing book and count as updated.
type BookImportResult struct {
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Duplicates int        `json:"duplicates"`
	Errors     []RowError `json:"errors"`
}

type UserImportResult struct {
	Created    int        `json:"created"`
	Duplicates int        `json:"duplicates"`
	Errors     []RowError `json:"errors"`
}

// Publication years accepted by the catalog.
const (
	minYear = 1000
	maxYear = 2030
)

// Kind selects a CSV layout.
type Kind string

const (
	KindBooks Kind = "books"
	KindUsers Kind = "users"
	KindLoans Kind = "loans"
)

var (
	bookImportColumns = []string{"title", "authors", "isbn", "publisher", "year", "description", "categories", "total_copies", "location", "cover_url"}
	userImportColumns = []string{"username", "email", "full_name", "role", "class", "phone", "password"}

	bookExportColumns = []string{"id", "title", "authors", "isbn", "publisher", "year", "description", "categories", "total_copies", "available_copies", "location", "cover_url", "created_at"}
	userExportColumns = []string{"id", "username", "email", "full_name", "role", "class", "phone", "active", "created_at"}
	loanExportColumns = []string{"loan_id", "book_title", "book_authors", "book_isbn", "user_name", "user_email", "user_role", "user_class", "borrowed_at", "due_at", "returned_at", "status", "fine"}
)

var templates = map[Kind][]string{
	KindBooks: {"Exemple Livre", "Auteur Un, Auteur Deux", "978-2-1234-5678-9", "Éditions Exemple", "2023", "Description du livre...", "Fiction, Jeunesse", "3", "Rayon A - Étagère 1", "https://example.com/cover.jpg"},
	KindUsers: {"jean.martin", "jean.martin@ecole.fr", "Jean Martin", string(auth.RoleStudent), "6ème A", "0123456789", "jean123"},
}
