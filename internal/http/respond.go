package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/service/appinfo"
	"github.com/ratekl/api/internal/service/directory"
	"github.com/ratekl/api/internal/store"
)

const maxBodyBytes = 4 << 20

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeIssues sends a validation failure with its individual issues.
func writeIssues(w http.ResponseWriter, msg string, issues []string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg, "details": issues})
}

func writeCount(w http.ResponseWriter, n int64) {
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// writeServiceError maps domain and storage errors onto HTTP statuses.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var (
		validation *repository.ValidationError
		invalid    *repository.InvalidBodyError
	)
	switch {
	case errors.As(err, &validation):
		writeIssues(w, validation.Error(), validation.Issues)
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	case directory.IsInvalid(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateKey), errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, appinfo.ErrNoPrevious):
		writeError(w, http.StatusConflict, err.Error())
	default:
		r.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes a JSON body into dst, rejecting properties dst does not
// declare.
func decodeBody(w http.ResponseWriter, req *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return fmt.Errorf("%s: unknown property", strings.Trim(field, `"`))
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// decodePatch decodes a partial update. An empty body yields an empty patch.
func decodePatch(w http.ResponseWriter, req *http.Request) (store.Document, error) {
	var patch store.Document
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&patch); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if patch == nil {
		patch = store.Document{}
	}
	return patch, nil
}

// queryFilter parses the optional ?filter= JSON parameter.
func queryFilter(req *http.Request) (store.Filter, error) {
	raw := strings.TrimSpace(req.URL.Query().Get("filter"))
	if raw == "" {
		return store.Filter{}, nil
	}
	return store.ParseFilter(raw)
}

// queryWhere parses the optional ?where= JSON parameter.
func queryWhere(req *http.Request) (store.Where, error) {
	raw := strings.TrimSpace(req.URL.Query().Get("where"))
	if raw == "" {
		return nil, nil
	}
	return store.ParseWhere(raw)
}
