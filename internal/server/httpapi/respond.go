package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/annachatkara/moviedb/internal/common"
	"github.com/annachatkara/moviedb/internal/server/backend"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeFailure maps err to a status and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

// statusFor maps service errors to HTTP statuses. Backend rejections are
// client errors; anything unrecognised is a 500.
func statusFor(err error) int {
	var be *backend.Error
	switch {
	case errors.Is(err, common.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &be):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBodyTooLarge = fmt.Errorf("%w: request body too large", common.ErrInvalidArgument)

// readBody reads the request body; the size cap itself is installed by
// limitBody.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("%w: request body is required", common.ErrInvalidArgument)
	}
	defer r.Body.Close()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("%w: read body: %v", common.ErrInvalidArgument, err)
	}
	return bytes.TrimSpace(raw), nil
}

// decodeRecords decodes a JSON array of objects.
func decodeRecords(raw []byte) ([]backend.Record, error) {
	var recs []backend.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON array: %v", common.ErrInvalidArgument, err)
	}
	if recs == nil {
		recs = []backend.Record{}
	}
	for i, rec := range recs {
		if rec == nil {
			return nil, fmt.Errorf("%w: element %d is not an object", common.ErrInvalidArgument, i)
		}
	}
	return recs, nil
}

// decodeRecord decodes a single JSON object.
func decodeRecord(raw []byte) (backend.Record, error) {
	var rec backend.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON object: %v", common.ErrInvalidArgument, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", common.ErrInvalidArgument)
	}
	return rec, nil
}

// bodyShape reports the first significant byte of a JSON document.
func bodyShape(raw []byte) byte {
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}
