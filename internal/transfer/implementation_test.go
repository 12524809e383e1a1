package transfer

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/catalog"
	"schoollib/internal/membership"
	"schoollib/internal/reports"
	"schoollib/internal/store/storetest"
)

type fakeCatalog struct {
	catalog.Service
	books []*catalog.Book
	added map[uuid.UUID]int
}

func (f *fakeCatalog) MatchBook(_ context.Context, isbn, title, author string) (*catalog.Book, error) {
	for _, b := range f.books {
		if isbn != "" {
			if b.ISBN != nil && *b.ISBN == isbn {
				return b, nil
			}
			continue
		}
		if b.Title == title && len(b.Authors) > 0 && b.Authors[0] == author {
			return b, nil
		}
	}
	return nil, apperr.NotFound("Book not found")
}

func (f *fakeCatalog) AddCopies(_ context.Context, id uuid.UUID, n int) (*catalog.Book, error) {
	if f.added == nil {
		f.added = map[uuid.UUID]int{}
	}
	f.added[id] += n
	return &catalog.Book{ID: id}, nil
}

func (f *fakeCatalog) CreateBook(_ context.Context, c catalog.NewBook) (*catalog.Book, error) {
	if c.Year != nil && *c.Year > 2030 {
		return nil, apperr.Validation("year must be at most 2030")
	}
	b := &catalog.Book{ID: uuid.New(), Title: c.Title, Authors: c.Authors, ISBN: c.ISBN, Categories: c.Categories, Year: c.Year, TotalCopies: c.TotalCopies, AvailableCopies: c.TotalCopies}
	f.books = append(f.books, b)
	return b, nil
}

func (f *fakeCatalog) ListBooks(_ context.Context, flt catalog.Filter) ([]catalog.Book, error) {
	out := []catalog.Book{}
	for _, b := range f.books {
		if flt.Category == nil || contains(b.Categories, *flt.Category) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

type fakeMembers struct {
	membership.Service
	users []membership.NewUser
}

func (f *fakeMembers) Exists(_ context.Context, username, email string) (bool, error) {
	for _, u := range f.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembers) CreateUser(_ context.Context, c membership.NewUser) (*membership.User, error) {
	if !strings.Contains(c.Email, "@") {
		return nil, apperr.Validation("email must be a valid email address")
	}
	f.users = append(f.users, c)
	return &membership.User{ID: uuid.New(), Username: c.Username}, nil
}

func (f *fakeMembers) ListUsers(_ context.Context, flt membership.Filter) ([]membership.User, error) {
	out := []membership.User{}
	for _, c := range f.users {
		if flt.Role == nil || *flt.Role == c.Role {
			out = append(out, membership.User{ID: uuid.New(), Username: c.Username, Email: c.Email, FullName: c.FullName, Role: c.Role, ClassName: c.ClassName, Active: true})
		}
	}
	return out, nil
}

type fakeReports struct {
	reports.Service
	rows   []reports.LoanRow
	filter reports.LoanFilter
}

func (f *fakeReports) LoansReport(_ context.Context, flt reports.LoanFilter) (*reports.LoansReport, error) {
	f.filter = flt
	return &reports.LoansReport{Loans: f.rows}, nil
}

func newTestService() (*service, *fakeCatalog, *fakeMembers, *fakeReports) {
	books, members, rep := &fakeCatalog{}, &fakeMembers{}, &fakeReports{}
	return NewService(books, members, rep, storetest.Logger()).(*service), books, members, rep
}

func TestImportBooks(t *testing.T) {
	svc, books, _, _ := newTestService()
	isbn := "9782070612758"
	books.books = append(books.books, &catalog.Book{ID: uuid.New(), Title: "Le Petit Prince", Authors: []string{"Saint-Exupery"}, ISBN: &isbn})

	src := strings.Join([]string{
		"title,authors,isbn,year,categories,total_copies",
		"Le Petit Prince,Saint-Exupery,9782070612758,,Roman,2",
		`Asterix,"Goscinny, Uderzo",,1961,"BD, Humour",3`,
		"Sans copies,Anonyme,,,,",
		"Matilda,Roald Dahl,,,,deux",
		"Asterix,Goscinny,,,,1",
		"Futur,Quelqu'un,,2099,,1",
	}, "\n")

	res, err := svc.ImportBooks(context.Background(), strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Updated)
	assert.Zero(t, res.Duplicates)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, RowError{Row: 4, Error: "Missing required fields: total_copies"}, res.Errors[0])
	assert.Equal(t, 5, res.Errors[1].Row)
	assert.True(t, strings.HasPrefix(res.Errors[1].Error, "Invalid data format: "))

	require.Len(t, books.books, 3)
	futur := books.books[2]
	assert.Equal(t, "Futur", futur.Title)
	assert.Nil(t, futur.Year)
	asterix := books.books[1]
	assert.Equal(t, []string{"Goscinny", "Uderzo"}, []string(asterix.Authors))
	assert.Equal(t, []string{"BD", "Humour"}, []string(asterix.Categories))
	require.NotNil(t, asterix.Year)
	assert.Equal(t, 1961, *asterix.Year)
	assert.Equal(t, 2, books.added[books.books[0].ID])
	assert.Equal(t, 1, books.added[asterix.ID])
}

func TestImportUsers(t *testing.T) {
	svc, _, members, _ := newTestService()
	members.users = append(members.users, membership.NewUser{Username: "prof_martin", Email: "martin@ecole.fr"})

	src := strings.Join([]string{
		"username,email,full_name,role,class,phone,password",
		"eleve_lina,lina@ecole.fr,Lina Morel,student,CM2-A,,",
		"prof_martin,autre@ecole.fr,Paul Martin,teacher,,,",
		"eleve_noe,noe@ecole.fr,Noe Blanc,janitor,,,",
		"eleve_zoe,,Zoe Roux,student,,,",
		"eleve_max,pas-un-email,Max Leroy,student,,,secret99",
	}, "\n")

	res, err := svc.ImportUsers(context.Background(), strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []RowError{
		{Row: 3, Error: "User prof_martin already exists"},
		{Row: 4, Error: "Invalid role: janitor"},
		{Row: 5, Error: "Missing required fields: email"},
		{Row: 6, Error: "Invalid data format: email must be a valid email address"},
	}, res.Errors)

	created := members.users[1]
	assert.Equal(t, "eleve_lina123", created.Password)
	require.NotNil(t, created.ClassName)
	assert.Equal(t, "CM2-A", *created.ClassName)
	assert.Nil(t, created.Phone)
}

func readCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportBooks(t *testing.T) {
	svc, books, _, _ := newTestService()
	y := 1943
	books.books = append(books.books,
		&catalog.Book{ID: uuid.New(), Title: "Le Petit Prince", Authors: []string{"Saint-Exupery"}, Year: &y, Categories: []string{"Roman", "Jeunesse"}, TotalCopies: 3, AvailableCopies: 1},
		&catalog.Book{ID: uuid.New(), Title: "Asterix", Authors: []string{"Goscinny", "Uderzo"}, Categories: []string{"BD"}, TotalCopies: 1},
	)

	var buf bytes.Buffer
	cat := "Roman"
	require.NoError(t, svc.ExportBooks(context.Background(), &buf, &cat))
	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, bookExportColumns, rows[0])
	assert.Equal(t, "Le Petit Prince", rows[1][1])
	assert.Equal(t, "1943", rows[1][5])
	assert.Equal(t, "Roman, Jeunesse", rows[1][7])
	assert.Equal(t, "3", rows[1][8])
	assert.Equal(t, "1", rows[1][9])
}

func TestExportUsers(t *testing.T) {
	svc, _, members, _ := newTestService()
	members.users = append(members.users,
		membership.NewUser{Username: "eleve_lina", Email: "lina@ecole.fr", FullName: "Lina Morel", Role: auth.RoleStudent},
		membership.NewUser{Username: "admin", Email: "admin@ecole.fr", FullName: "Admin", Role: auth.RoleAdmin},
	)

	var buf bytes.Buffer
	role := auth.RoleStudent
	require.NoError(t, svc.ExportUsers(context.Background(), &buf, &role))
	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, userExportColumns, rows[0])
	assert.Equal(t, "eleve_lina", rows[1][1])
	assert.Equal(t, "true", rows[1][7])
}

func TestExportLoans(t *testing.T) {
	svc, _, _, rep := newTestService()
	borrowed := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	returned := borrowed.Add(20 * 24 * time.Hour)
	rep.rows = []reports.LoanRow{{
		ID: uuid.New(), BookTitle: "Asterix", BookAuthors: []string{"Goscinny", "Uderzo"},
		UserName: "Lina Morel", UserEmail: "lina@ecole.fr", UserRole: auth.RoleStudent,
		BorrowedAt: borrowed, DueAt: borrowed.Add(14 * 24 * time.Hour), ReturnedAt: &returned,
		Status: "returned", Fine: 3,
	}}

	var buf bytes.Buffer
	status := "returned"
	require.NoError(t, svc.ExportLoans(context.Background(), &buf, reports.LoanFilter{Status: &status}))
	assert.Equal(t, "returned", *rep.filter.Status)

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, loanExportColumns, rows[0])
	assert.Equal(t, "Goscinny, Uderzo", rows[1][2])
	assert.Equal(t, "", rows[1][3])
	assert.Equal(t, "2024-03-04T10:00:00Z", rows[1][8])
	assert.Equal(t, "3", rows[1][12])
}

func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, KindUsers))
	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, userImportColumns, rows[0])
	assert.Equal(t, "student", rows[1][3])

	buf.Reset()
	require.NoError(t, WriteTemplate(&buf, KindBooks))
	rows = readCSV(t, buf.Bytes())
	assert.Equal(t, bookImportColumns, rows[0])
	assert.Len(t, rows[1], len(bookImportColumns))

	assert.ErrorIs(t, WriteTemplate(&buf, KindLoans), apperr.ErrNotFound)
}
