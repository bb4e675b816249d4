package postgrest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/server/backend"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", "secret-key", srv.Client())
	require.NoError(t, err)
	return c
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New("localhost:5432", "k", nil)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestInsert_SendsRowsAndHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/movies", r.URL.Path)
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "secret-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		assert.Equal(t, "return=representation,missing=default", r.Header.Get("Prefer"))

		var got []map[string]any
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Len(t, got, 2)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":1,"title":"A"},{"id":2,"title":"B"}]`))
	})

	rows, err := c.Insert(context.Background(), "movies", []backend.Record{{"title": "A"}, {"title": "B"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, float64(2), rows[1]["id"])
}

func TestUpsert_Resolution(t *testing.T) {
	tests := []struct {
		name   string
		ignore bool
		prefer string
	}{
		{"skip", true, "return=representation,resolution=ignore-duplicates,missing=default"},
		{"merge", false, "return=representation,resolution=merge-duplicates,missing=default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "id", r.URL.Query().Get("on_conflict"))
				assert.Equal(t, tt.prefer, r.Header.Get("Prefer"))
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`[]`))
			})
			rows, err := c.Upsert(context.Background(), "anime", []backend.Record{{"id": 1}},
				backend.UpsertOptions{IgnoreDuplicates: tt.ignore})
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestSelect_FiltersOrderAndCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, []string{"not.is.null", "neq."}, q["video_url"])
		assert.Equal(t, "release_date.desc", q.Get("order"))
		assert.Equal(t, "30", q.Get("limit"))
		assert.Equal(t, "30", q.Get("offset"))
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "30-44/45")
		_, _ = w.Write([]byte(`[{"id":31}]`))
	})

	res, err := c.Select(context.Background(), "movies", backend.Query{
		Filters: []backend.Filter{
			{Column: "video_url", Op: backend.OpNotNull},
			{Column: "video_url", Op: backend.OpNeq, Value: ""},
		},
		OrderBy: "release_date",
		Desc:    true,
		Limit:   30,
		Offset:  30,
		Count:   backend.CountExact,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(45), res.Count)
	assert.Len(t, res.Rows, 1)
}

func TestSelect_ContainsAndEstimated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ilike.*matrix*", r.URL.Query().Get("original_title"))
		assert.Equal(t, "count=estimated", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "*/0")
		_, _ = w.Write([]byte(`[]`))
	})

	res, err := c.Select(context.Background(), "movies", backend.Query{
		Filters: []backend.Filter{{Column: "original_title", Op: backend.OpContainsCI, Value: "matrix"}},
		Count:   backend.CountEstimated,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Count)
}

func TestSelect_NoCountLeavesMinusOne(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.42", r.URL.Query().Get("id"))
		assert.Empty(t, r.Header.Get("Prefer"))
		_, _ = w.Write([]byte(`[{"id":42}]`))
	})

	res, err := c.Select(context.Background(), "series", backend.Query{
		Filters: []backend.Filter{backend.Eq("id", int64(42))},
		Limit:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), res.Count)
	require.Len(t, res.Rows, 1)
}

func TestUpdateAndDelete(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		assert.Equal(t, "eq.7", r.URL.Query().Get("id"))
		switch r.Method {
		case http.MethodPatch:
			_, _ = w.Write([]byte(`[{"id":7,"title":"New"}]`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	rows, err := c.Update(context.Background(), "movies", []backend.Filter{backend.Eq("id", "7")}, backend.Record{"title": "New"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "New", rows[0]["title"])

	require.NoError(t, c.Delete(context.Background(), "movies", []backend.Filter{backend.Eq("id", "7")}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodPatch, http.MethodDelete}, methods)
}

func TestErrorDocumentBecomesBackendError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"movies_pkey\"","details":"Key (id)=(1) already exists.","hint":null}`))
	})

	_, err := c.Insert(context.Background(), "movies", []backend.Record{{"id": 1}})
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "23505", be.Code)
	assert.Equal(t, `duplicate key value violates unique constraint "movies_pkey"`, be.Error())
}

func TestNonJSONErrorKeepsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Select(context.Background(), "movies", backend.Query{})
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "502", be.Code)
	assert.Equal(t, "Bad Gateway", be.Message)
}

func TestParseContentRange(t *testing.T) {
	assert.Equal(t, int64(45), parseContentRange("0-29/45"))
	assert.Equal(t, int64(0), parseContentRange("*/0"))
	assert.Equal(t, int64(-1), parseContentRange("0-29/*"))
	assert.Equal(t, int64(-1), parseContentRange(""))
}
