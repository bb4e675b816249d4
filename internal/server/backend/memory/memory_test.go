package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/server/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_AssignsIDsAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	b := New("movies")

	rows, err := b.Insert(ctx, "movies", []backend.Record{{"title": "A"}, {"id": float64(10), "title": "B"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, float64(10), rows[1]["id"])

	_, err = b.Insert(ctx, "movies", []backend.Record{{"id": 11}, {"id": 10}})
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "23505", be.Code)
	assert.Equal(t, 2, b.Len("movies"), "failed insert must not write any row")

	rows, err = b.Insert(ctx, "movies", []backend.Record{{"title": "C"}})
	require.NoError(t, err)
	assert.Equal(t, int64(11), rows[0]["id"])
}

func TestInsert_UnknownTable(t *testing.T) {
	_, err := New("movies").Insert(context.Background(), "books", []backend.Record{{"id": 1}})
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "42P01", be.Code)
}

func TestUpsert_SkipAndMerge(t *testing.T) {
	ctx := context.Background()
	b := New("movies")
	_, err := b.Insert(ctx, "movies", []backend.Record{{"id": 1, "title": "Old", "year": 1999}})
	require.NoError(t, err)

	rows, err := b.Upsert(ctx, "movies", []backend.Record{{"id": 1, "title": "New"}, {"id": 2, "title": "Two"}},
		backend.UpsertOptions{IgnoreDuplicates: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0]["id"])

	res, err := b.Select(ctx, "movies", backend.Query{Filters: []backend.Filter{backend.Eq("id", 1)}})
	require.NoError(t, err)
	assert.Equal(t, "Old", res.Rows[0]["title"])

	rows, err = b.Upsert(ctx, "movies", []backend.Record{{"id": 1, "title": "New"}}, backend.UpsertOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "New", rows[0]["title"])
	assert.Equal(t, 1999, rows[0]["year"], "merge keeps columns absent from the payload")
	assert.Equal(t, 2, b.Len("movies"))
}

func TestSelect_FilterOrderPage(t *testing.T) {
	ctx := context.Background()
	b := New("movies")
	_, err := b.Insert(ctx, "movies", []backend.Record{
		{"id": 1, "original_title": "The Matrix", "release_date": "1999-03-31", "video_url": "https://v/1"},
		{"id": 2, "original_title": "Matrix Reloaded", "release_date": "2003-05-15", "video_url": ""},
		{"id": 3, "original_title": "Heat", "release_date": "1995-12-15", "video_url": nil},
		{"id": 4, "original_title": "THE MATRIX RESURRECTIONS", "release_date": "2021-12-22", "video_url": "https://v/4"},
	})
	require.NoError(t, err)

	res, err := b.Select(ctx, "movies", backend.Query{
		Filters: []backend.Filter{{Column: "original_title", Op: backend.OpContainsCI, Value: "matrix"}},
		OrderBy: "release_date",
		Desc:    true,
		Count:   backend.CountExact,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Count)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, 4, res.Rows[0]["id"])
	assert.Equal(t, 1, res.Rows[2]["id"])

	res, err = b.Select(ctx, "movies", backend.Query{
		Filters: []backend.Filter{
			{Column: "video_url", Op: backend.OpNotNull},
			{Column: "video_url", Op: backend.OpNeq, Value: ""},
		},
		Count: backend.CountEstimated,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Count)

	res, err = b.Select(ctx, "movies", backend.Query{OrderBy: "release_date", Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), res.Count)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 4, res.Rows[0]["id"])
}

func TestSelect_NullsSortFirstWhenDescending(t *testing.T) {
	ctx := context.Background()
	b := New("series")
	_, err := b.Insert(ctx, "series", []backend.Record{
		{"id": 1, "release_date": "2001-01-01"},
		{"id": 2},
	})
	require.NoError(t, err)

	res, err := b.Select(ctx, "series", backend.Query{OrderBy: "release_date", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows[0]["id"])
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	b := New("anime")
	_, err := b.Insert(ctx, "anime", []backend.Record{{"id": 1, "title": "A"}, {"id": 2, "title": "B"}})
	require.NoError(t, err)

	rows, err := b.Update(ctx, "anime", []backend.Filter{backend.Eq("id", "1")}, backend.Record{"title": "X"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "X", rows[0]["title"])

	rows, err = b.Update(ctx, "anime", []backend.Filter{backend.Eq("id", 99)}, backend.Record{"title": "X"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = b.Update(ctx, "anime", []backend.Filter{backend.Eq("id", 1)}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	require.NoError(t, b.Delete(ctx, "anime", []backend.Filter{backend.Eq("id", int64(1))}))
	require.NoError(t, b.Delete(ctx, "anime", []backend.Filter{backend.Eq("id", int64(1))}))
	assert.Equal(t, 1, b.Len("anime"))

	assert.ErrorIs(t, b.Delete(ctx, "anime", nil), common.ErrInvalidArgument)

	res, err := b.Select(ctx, "anime", backend.Query{Filters: []backend.Filter{backend.Eq("id", 2)}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}
