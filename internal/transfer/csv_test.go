package transfer

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoollib/internal/apperr"
)

func TestReaderRowsAndHeader(t *testing.T) {
	src := "\ufeffTitle , Authors,total_copies\n" +
		"Le Petit Prince,  Saint-Exupery ,2\n" +
		"\n" +
		",,\n" +
		"Matilda,Roald Dahl\n"
	r, err := newReader(strings.NewReader(src))
	require.NoError(t, err)

	rec, row, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, 2, row)
	assert.Equal(t, "Le Petit Prince", rec.get("title"))
	assert.Equal(t, "Saint-Exupery", rec.get("authors"))
	assert.Equal(t, "2", rec.get("total_copies"))

	rec, row, err = r.next()
	require.NoError(t, err)
	assert.Equal(t, 3, row)
	assert.Equal(t, []string{"total_copies"}, rec.missing("title", "authors", "total_copies"))
	assert.Nil(t, rec.optional("isbn"))

	_, _, err = r.next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReaderEmpty(t *testing.T) {
	_, err := newReader(strings.NewReader(""))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Goscinny", "Uderzo"}, splitList(" Goscinny , Uderzo ,"))
	assert.Equal(t, []string{}, splitList(""))
}
