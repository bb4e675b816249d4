package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/server/backend"
)

// ParseError reports an NDJSON line that is not a JSON object or is longer
// than MaxLineBytes.
type ParseError struct {
	// Line is 1-based and counts blank lines.
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON on line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MaxLineBytes bounds one NDJSON line. Longer lines fail with a ParseError.
const MaxLineBytes = 4 << 20

// maxPrealloc caps the records reserved up front for a pending chunk.
const maxPrealloc = 1024

var errNotObject = errors.New("not a JSON object")

// StreamNDJSON reads newline-delimited JSON objects from location and
// writes them to table in skip mode, chunkSize records per write. The body
// is never held in memory beyond one pending chunk. The first parse or
// write failure aborts; the returned count covers what was written before.
func StreamNDJSON(ctx context.Context, b backend.Backend, src Source, table, location string, chunkSize int) (int, error) {
	if b == nil || src == nil {
		return 0, fmt.Errorf("%w: nil backend or source", common.ErrInvalidArgument)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	body, err := src.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	w := writer{backend: b, table: table, mode: ModeSkip}
	buf := make([]backend.Record, 0, min(chunkSize, maxPrealloc))
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		err := w.write(ctx, buf)
		buf = buf[:0:0]
		return err
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		rec, err := parseLine(raw)
		if err != nil {
			return w.inserted, &ParseError{Line: line, Err: err}
		}
		buf = append(buf, rec)
		if len(buf) >= chunkSize {
			if err := flush(); err != nil {
				return w.inserted, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return w.inserted, &ParseError{Line: line + 1, Err: fmt.Errorf("line longer than %d bytes", MaxLineBytes)}
		}
		return w.inserted, &FetchError{URL: location, Err: err}
	}

	if err := flush(); err != nil {
		return w.inserted, err
	}
	return w.inserted, nil
}

func parseLine(raw []byte) (backend.Record, error) {
	var rec backend.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errNotObject
	}
	return rec, nil
}
