package transfer

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"schoollib/internal/apperr"
)

const bom = "\ufeff"

// reader yields CSV records keyed by header name. Column names are
// matched case-insensitively and values are trimmed.
type reader struct {
	r      *csv.Reader
	header map[string]int
	row    int
}

func newReader(src io.Reader) (*reader, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperr.Validation("CSV file is empty")
	}
	if err != nil {
		return nil, apperr.Validation("Invalid CSV header: %v", err)
	}

	header := make(map[string]int, len(head))
	for i, name := range head {
		if i == 0 {
			name = strings.TrimPrefix(name, bom)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := header[name]; !dup && name != "" {
			header[name] = i
		}
	}
	return &reader{r: r, header: header, row: 1}, nil
}

// record is one data row.
type record struct {
	fields []string
	header map[string]int
}

func (rec record) get(name string) string {
	i, ok := rec.header[name]
	if !ok || i >= len(rec.fields) {
		return ""
	}
	return strings.TrimSpace(rec.fields[i])
}

func (rec record) optional(name string) *string {
	if v := rec.get(name); v != "" {
		return &v
	}
	return nil
}

// missing lists the required columns that are blank, in the order given.
func (rec record) missing(required ...string) []string {
	var out []string
	for _, name := range required {
		if rec.get(name) == "" {
			out = append(out, name)
		}
	}
	return out
}

// next returns the following row and its number. A malformed row comes
// back with a non-nil parse error and reading may continue; io.EOF ends
// the file.
func (r *reader) next() (record, int, error) {
	for {
		fields, err := r.r.Read()
		if errors.Is(err, io.EOF) {
			return record{}, 0, io.EOF
		}
		r.row++
		if err != nil {
			return record{}, r.row, err
		}
		if blank(fields) {
			r.row--
			continue
		}
		return record{fields: fields, header: r.header}, r.row, nil
	}
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// splitList splits a comma separated cell, dropping empty entries.
func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
