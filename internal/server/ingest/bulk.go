// Package ingest writes record batches to the backend: chunked bulk inserts
// in one of three conflict modes, and NDJSON streams fetched from a remote
// source and flushed in bounded batches.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/annachatkara/moviedb/internal/chunk"
	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/server/backend"
)

// DefaultChunkSize is the number of records per backend write when the
// caller does not choose one.
const DefaultChunkSize = 30

// Mode selects conflict handling for bulk writes.
type Mode string

const (
	// ModeSkip upserts on id and leaves existing rows untouched.
	ModeSkip Mode = "skip"
	// ModeMerge upserts on id and overwrites existing rows.
	ModeMerge Mode = "merge"
	// ModeInsert inserts plainly; a duplicate id fails the chunk.
	ModeInsert Mode = "insert"
)

// ParseMode maps a query-string value to a Mode. Empty and unknown values
// fall back to ModeInsert.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSkip:
		return ModeSkip
	case ModeMerge:
		return ModeMerge
	default:
		return ModeInsert
	}
}

// Options configures BulkInsert.
type Options struct {
	ChunkSize int
	Mode      Mode
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

// ChunkError reports the chunk that stopped a bulk write. Earlier chunks
// stay written.
type ChunkError struct {
	// Index is the 1-based position of the failing chunk.
	Index int
	// Inserted is the number of rows written before the failure.
	Inserted int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// BulkInsert splits records into chunks and writes them one after another.
// It stops at the first failing chunk and returns the number of rows
// written so far with a *ChunkError.
func BulkInsert(ctx context.Context, b backend.Backend, table string, records []backend.Record, opts Options) (int, error) {
	if b == nil {
		return 0, fmt.Errorf("%w: nil backend", common.ErrInvalidArgument)
	}
	chunks, err := chunk.Split(records, opts.chunkSize())
	if err != nil {
		return 0, err
	}

	w := writer{backend: b, table: table, mode: opts.Mode}
	for _, c := range chunks {
		if err := w.write(ctx, c); err != nil {
			return w.inserted, err
		}
	}
	return w.inserted, nil
}

// writer carries the running totals of a sequence of chunk writes.
type writer struct {
	backend  backend.Backend
	table    string
	mode     Mode
	chunks   int
	inserted int
}

func (w *writer) write(ctx context.Context, rows []backend.Record) error {
	w.chunks++

	var (
		written []backend.Record
		err     error
	)
	switch w.mode {
	case ModeSkip:
		written, err = w.backend.Upsert(ctx, w.table, rows, backend.UpsertOptions{IgnoreDuplicates: true})
	case ModeMerge:
		written, err = w.backend.Upsert(ctx, w.table, rows, backend.UpsertOptions{})
	default:
		written, err = w.backend.Insert(ctx, w.table, rows)
	}
	if err != nil {
		return &ChunkError{Index: w.chunks, Inserted: w.inserted, Err: err}
	}
	w.inserted += len(written)
	return nil
}
