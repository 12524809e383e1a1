package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoollib/internal/apperr"
	"schoollib/internal/store"
)

func TestListQueryFilters(t *testing.T) {
	search, category, available := "50%", "Roman", true
	sql, args, err := listQuery(Filter{
		Page:      store.Page{Skip: 20, Limit: 10},
		Search:    &search,
		Category:  &category,
		Available: &available,
	}).Prepared(true).ToSQL()
	require.NoError(t, err)

	assert.Contains(t, sql, `"title" ILIKE $1`)
	assert.Contains(t, sql, `array_to_string(authors, ' ') ILIKE $2`)
	assert.Contains(t, sql, `= ANY(categories)`)
	assert.Contains(t, sql, `"available_copies" > `)
	assert.Contains(t, sql, `ORDER BY "title" ASC`)
	assert.Contains(t, sql, "LIMIT")
	assert.Contains(t, sql, "OFFSET")
	assert.Contains(t, args, `%50\%%`)
	assert.Contains(t, args, "Roman")
}

func TestListQueryUnavailable(t *testing.T) {
	available := false
	sql, _, err := listQuery(Filter{Available: &available}).Prepared(true).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, `"available_copies" = `)
	assert.NotContains(t, sql, "LIMIT")
}

func TestMergeShiftsAvailability(t *testing.T) {
	b := &Book{TotalCopies: 3, AvailableCopies: 1}

	total := 5
	require.NoError(t, merge(b, BookUpdate{TotalCopies: &total}))
	assert.Equal(t, 5, b.TotalCopies)
	assert.Equal(t, 3, b.AvailableCopies)

	// Two copies are on loan, so the total may drop to exactly two.
	total = 2
	require.NoError(t, merge(b, BookUpdate{TotalCopies: &total}))
	assert.Equal(t, 2, b.TotalCopies)
	assert.Equal(t, 0, b.AvailableCopies)

	lent := &Book{TotalCopies: 5, AvailableCopies: 3}
	total = 1
	err := merge(lent, BookUpdate{TotalCopies: &total})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 5, lent.TotalCopies)
	assert.Equal(t, 3, lent.AvailableCopies)
}

func TestCleanList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, []string(cleanList([]string{" a ", "", "b"})))
	assert.NotNil(t, cleanList(nil))
}
