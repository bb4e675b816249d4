// Package services contains server-side business logic. CatalogService
// implements the per-table operations behind the generated HTTP routes:
// paginated listing, search, point lookups, partial updates and bulk loads.
package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/logging"
	"github.com/annachatkara/moviedb/internal/server/backend"
	"github.com/annachatkara/moviedb/internal/server/ingest"
)

const (
	// PageSize is the number of rows per listing page.
	PageSize = 30
	// CreateChunkSize bounds one insert when a create request carries an array.
	CreateChunkSize = 5000

	releaseColumn = "release_date"
	titleColumn   = "original_title"
	videoColumn   = "video_url"
)

// Page is one page of a listing or search.
type Page struct {
	Page       int              `json:"page"`
	Total      int64            `json:"total"`
	TotalPages int              `json:"totalPages"`
	Results    []backend.Record `json:"results"`
}

// BulkRequest describes one bulk-upload call. Exactly one of Records and
// FileURL is set.
type BulkRequest struct {
	Records   []backend.Record
	FileURL   string
	ChunkSize int
	Mode      ingest.Mode
}

// CatalogService runs catalog operations against one backend.
type CatalogService struct {
	backend backend.Backend
	source  ingest.Source
	log     logging.Logger
}

// NewCatalogService wires the service. source serves bulk-upload file URLs.
func NewCatalogService(b backend.Backend, source ingest.Source, log logging.Logger) *CatalogService {
	if log == nil {
		log = logging.Discard()
	}
	return &CatalogService{backend: b, source: source, log: log}
}

// CreateOne inserts rec and returns it as stored, including backend-assigned
// fields.
func (s *CatalogService) CreateOne(ctx context.Context, table string, rec backend.Record) (backend.Record, error) {
	rows, err := s.backend.Insert(ctx, table, []backend.Record{rec})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rec, nil
	}
	return rows[0], nil
}

// CreateMany inserts recs in chunks of CreateChunkSize and stops at the
// first failing chunk.
func (s *CatalogService) CreateMany(ctx context.Context, table string, recs []backend.Record) (int, error) {
	n, err := ingest.BulkInsert(ctx, s.backend, table, recs, ingest.Options{
		ChunkSize: CreateChunkSize,
		Mode:      ingest.ModeInsert,
	})
	if err != nil {
		s.log.Warn(ctx, "create failed", "table", table, "inserted", n, "error", err)
		return n, err
	}
	return n, nil
}

// List returns a page of table ordered by release date, newest first.
func (s *CatalogService) List(ctx context.Context, table string, page int) (*Page, error) {
	return s.page(ctx, table, nil, page, backend.CountExact)
}

// ListWithVideo is List restricted to rows with a non-empty video URL.
func (s *CatalogService) ListWithVideo(ctx context.Context, table string, page int) (*Page, error) {
	filters := []backend.Filter{
		{Column: videoColumn, Op: backend.OpNotNull},
		{Column: videoColumn, Op: backend.OpNeq, Value: ""},
	}
	return s.page(ctx, table, filters, page, backend.CountExact)
}

// SearchTitle pages through rows whose original title contains q, ignoring
// case. estimated trades the exact total for the planner's estimate.
func (s *CatalogService) SearchTitle(ctx context.Context, table, q string, page int, estimated bool) (*Page, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: empty search query", common.ErrInvalidArgument)
	}
	count := backend.CountExact
	if estimated {
		count = backend.CountEstimated
	}
	filters := []backend.Filter{{Column: titleColumn, Op: backend.OpContainsCI, Value: q}}
	return s.page(ctx, table, filters, page, count)
}

func (s *CatalogService) page(ctx context.Context, table string, filters []backend.Filter, page int, count backend.CountMode) (*Page, error) {
	page = NormalizePage(page)
	res, err := s.backend.Select(ctx, table, backend.Query{
		Filters: filters,
		OrderBy: releaseColumn,
		Desc:    true,
		Limit:   PageSize,
		Offset:  (page - 1) * PageSize,
		Count:   count,
	})
	if err != nil {
		return nil, err
	}

	total := max(res.Count, 0)
	results := res.Rows
	if results == nil {
		results = []backend.Record{}
	}
	return &Page{
		Page:       page,
		Total:      total,
		TotalPages: TotalPages(total),
		Results:    results,
	}, nil
}

// Get returns the row with the given numeric id or common.ErrNotFound.
func (s *CatalogService) Get(ctx context.Context, table, id string) (backend.Record, error) {
	key, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	res, err := s.backend.Select(ctx, table, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", key)},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, common.ErrNotFound
	}
	return res.Rows[0], nil
}

// Update applies a partial update to the row with id and returns it.
// common.ErrNotFound means no row matched.
func (s *CatalogService) Update(ctx context.Context, table, id string, values backend.Record) (backend.Record, error) {
	key, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty update", common.ErrInvalidArgument)
	}
	rows, err := s.backend.Update(ctx, table, []backend.Filter{backend.Eq("id", key)}, values)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrNotFound
	}
	return rows[0], nil
}

// Delete removes the row with id. Deleting a missing row is not an error.
func (s *CatalogService) Delete(ctx context.Context, table, id string) error {
	key, err := ParseID(id)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, table, []backend.Filter{backend.Eq("id", key)})
}

// BulkUpload loads req.Records through the chunked writer in req.Mode, or
// streams req.FileURL as NDJSON in skip mode.
func (s *CatalogService) BulkUpload(ctx context.Context, table string, req BulkRequest) (int, error) {
	hasFile := strings.TrimSpace(req.FileURL) != ""
	if hasFile == (req.Records != nil) {
		return 0, fmt.Errorf("%w: provide either an array of records or a fileUrl", common.ErrInvalidArgument)
	}

	log := s.log.With("table", table)
	if hasFile {
		if s.source == nil {
			return 0, fmt.Errorf("%w: file sources are not configured", common.ErrInvalidArgument)
		}
		log.Info(ctx, "streaming bulk upload", "url", req.FileURL, "chunk_size", req.ChunkSize)
		n, err := ingest.StreamNDJSON(ctx, s.backend, s.source, table, strings.TrimSpace(req.FileURL), req.ChunkSize)
		if err != nil {
			log.Error(ctx, "bulk upload failed", "inserted", n, "error", err)
			return n, err
		}
		log.Info(ctx, "bulk upload finished", "inserted", n)
		return n, nil
	}

	n, err := ingest.BulkInsert(ctx, s.backend, table, req.Records, ingest.Options{
		ChunkSize: req.ChunkSize,
		Mode:      req.Mode,
	})
	if err != nil {
		log.Error(ctx, "bulk upload failed", "inserted", n, "error", err)
		return n, err
	}
	log.Info(ctx, "bulk upload finished", "inserted", n, "records", len(req.Records), "mode", string(req.Mode))
	return n, nil
}

// MaxPage is the largest page whose offset still fits in an int.
const MaxPage = math.MaxInt/PageSize + 1

// NormalizePage clamps page into [1, MaxPage].
func NormalizePage(page int) int {
	return min(max(page, 1), MaxPage)
}

// TotalPages is the number of PageSize pages needed for total rows.
func TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	pages := total / PageSize
	if total%PageSize != 0 {
		pages++
	}
	return int(pages)
}

// IsNumericID reports whether id is a non-empty run of ASCII digits.
func IsNumericID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// ParseID converts a digits-only id to int64.
func ParseID(id string) (int64, error) {
	if !IsNumericID(id) {
		return 0, fmt.Errorf("%w: id must be numeric", common.ErrInvalidArgument)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id out of range", common.ErrInvalidArgument)
	}
	return n, nil
}
