package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_NumbersAndStringsAgree(t *testing.T) {
	assert.Equal(t, "42", Key(float64(42)))
	assert.Equal(t, "42", Key(int64(42)))
	assert.Equal(t, "42", Key(42))
	assert.Equal(t, "42", Key("42"))
	assert.Equal(t, "42", Key(json.Number("42")))
	assert.Equal(t, "4.5", Key(4.5))
	assert.Equal(t, "", Key(nil))
}

func TestRecordID(t *testing.T) {
	id, ok := Record{"id": 7}.ID()
	assert.True(t, ok)
	assert.Equal(t, 7, id)

	_, ok = Record{"id": nil}.ID()
	assert.False(t, ok)

	_, ok = Record{"title": "x"}.ID()
	assert.False(t, ok)
}

func TestErrorMessagePassthrough(t *testing.T) {
	err := NewError("insert", "movies", "23505", "duplicate key value violates unique constraint %q", "movies_pkey")
	assert.Equal(t, `duplicate key value violates unique constraint "movies_pkey"`, err.Error())
	assert.Equal(t, "23505", err.Code)
}

func TestUpsertOptionsConflictColumn(t *testing.T) {
	assert.Equal(t, "id", UpsertOptions{}.ConflictColumn())
	assert.Equal(t, "slug", UpsertOptions{OnConflict: "slug"}.ConflictColumn())
}
