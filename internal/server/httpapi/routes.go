// Package httpapi exposes the catalog over HTTP: one generated route set per
// configured table plus a health probe.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/logging"
	"github.com/annachatkara/moviedb/internal/server/auth"
	"github.com/annachatkara/moviedb/internal/server/backend"
	"github.com/annachatkara/moviedb/internal/server/ingest"
	"github.com/annachatkara/moviedb/internal/server/services"
)

// Options configures NewHandler.
type Options struct {
	Tables       []string
	Secret       []byte
	MaxBodyBytes int64
	Logger       logging.Logger
}

// NewHandler builds the routed and middleware-wrapped HTTP handler.
func NewHandler(svc *services.CatalogService, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", health)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, common.ErrNotFound)
	})
	for _, table := range opts.Tables {
		h := &tableHandler{table: table, svc: svc, log: log.With("table", table)}
		h.register(mux, opts.Secret)
	}

	var handler http.Handler = mux
	handler = limitBody(opts.MaxBodyBytes, handler)
	handler = recoverPanics(log, handler)
	handler = requestLogging(log, handler)
	return handler
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// tableHandler serves the route set of one table.
type tableHandler struct {
	table string
	svc   *services.CatalogService
	log   logging.Logger
}

func (h *tableHandler) register(mux *http.ServeMux, secret []byte) {
	base := "/api/" + h.table
	mux.HandleFunc("POST "+base, requireAuth(secret, h.create))
	mux.HandleFunc("GET "+base, h.list)
	mux.HandleFunc("GET "+base+"/with-video", h.listWithVideo)
	mux.HandleFunc("GET "+base+"/search", h.search)
	mux.HandleFunc("GET "+base+"/{id}", h.get)
	mux.HandleFunc("PUT "+base+"/{id}", requireAuth(secret, h.update))
	mux.HandleFunc("DELETE "+base+"/{id}", requireAuth(secret, h.delete))
	mux.HandleFunc("POST "+base+"/bulk-upload", requireAuth(secret, h.bulkUpload))
}

func (h *tableHandler) create(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	switch bodyShape(raw) {
	case '[':
		recs, err := decodeRecords(raw)
		if err != nil {
			writeFailure(w, err)
			return
		}
		n, err := h.svc.CreateMany(context.WithoutCancel(r.Context()), h.table, recs)
		if err != nil {
			var ce *ingest.ChunkError
			if errors.As(err, &ce) {
				err = ce.Err
			}
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int{"inserted": n})
	case '{':
		rec, err := decodeRecord(raw)
		if err != nil {
			writeFailure(w, err)
			return
		}
		created, err := h.svc.CreateOne(r.Context(), h.table, rec)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeFailure(w, fmt.Errorf("%w: body must be a JSON object or array", common.ErrInvalidArgument))
	}
}

func (h *tableHandler) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), h.table, pageParam(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *tableHandler) listWithVideo(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListWithVideo(r.Context(), h.table, pageParam(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// search looks up ?id= exactly, otherwise pages through ?q= title matches.
func (h *tableHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if id := strings.TrimSpace(query.Get("id")); id != "" {
		rec, err := h.svc.Get(r.Context(), h.table, id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	q := strings.TrimSpace(query.Get("q"))
	if q == "" {
		writeFailure(w, fmt.Errorf("%w: provide id or q", common.ErrInvalidArgument))
		return
	}
	estimated := strings.EqualFold(query.Get("count"), "estimated")
	page, err := h.svc.SearchTitle(r.Context(), h.table, q, pageParam(r), estimated)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *tableHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !services.IsNumericID(id) {
		writeError(w, http.StatusNotFound, common.ErrNotFound)
		return
	}
	rec, err := h.svc.Get(r.Context(), h.table, id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *tableHandler) update(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	values, err := decodeRecord(raw)
	if err != nil {
		writeFailure(w, err)
		return
	}
	rec, err := h.svc.Update(r.Context(), h.table, r.PathValue("id"), values)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		h.log.Debug(r.Context(), "row updated", "id", r.PathValue("id"), "subject", claims.Subject)
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *tableHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Delete(r.Context(), h.table, id); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("%s %s deleted", h.table, id)})
}

// bulkBody is the object form of a bulk-upload body.
type bulkBody struct {
	Items   *[]backend.Record `json:"items"`
	FileURL *string           `json:"fileUrl"`
}

func (h *tableHandler) bulkUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	req := services.BulkRequest{
		ChunkSize: chunkSizeParam(r),
		Mode:      ingest.ParseMode(r.URL.Query().Get("mode")),
	}
	switch bodyShape(raw) {
	case '[':
		if req.Records, err = decodeRecords(raw); err != nil {
			writeFailure(w, err)
			return
		}
	case '{':
		var body bulkBody
		if err := json.Unmarshal(raw, &body); err != nil {
			writeFailure(w, fmt.Errorf("%w: invalid JSON object: %v", common.ErrInvalidArgument, err))
			return
		}
		hasItems := body.Items != nil
		hasFile := body.FileURL != nil && strings.TrimSpace(*body.FileURL) != ""
		if hasItems == hasFile {
			writeFailure(w, fmt.Errorf("%w: body needs exactly one of items or fileUrl", common.ErrInvalidArgument))
			return
		}
		if hasItems {
			req.Records = *body.Items
			if req.Records == nil {
				req.Records = []backend.Record{}
			}
			for i, rec := range req.Records {
				if rec == nil {
					writeFailure(w, fmt.Errorf("%w: item %d is not an object", common.ErrInvalidArgument, i))
					return
				}
			}
		} else {
			req.FileURL = *body.FileURL
		}
	default:
		writeFailure(w, fmt.Errorf("%w: body must be an array, {\"items\": [...]} or {\"fileUrl\": \"...\"}", common.ErrInvalidArgument))
		return
	}

	n, err := h.svc.BulkUpload(context.WithoutCancel(r.Context()), h.table, req)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "inserted": n})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": n})
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("page")))
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 1
	}
	return services.NormalizePage(page)
}

func chunkSizeParam(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("chunkSize")))
	if err != nil {
		return ingest.DefaultChunkSize
	}
	return max(n, 1)
}
