package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kalambet/naraboard/internal/apperr"
	"github.com/kalambet/naraboard/internal/storage"
)

// Response sources.
const (
	SourceStore    = "store"
	SourceCache    = "cache"
	SourceUpstream = "upstream"
)

// Envelope wraps every /jobs response.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Source  string          `json:"source"`
	Message string          `json:"message"`
	Error   string          `json:"error,omitempty"`
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Source  string `json:"source"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, code int, data any, source, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Source: source, Message: message})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(envelope{Message: fmt.Sprintf(format, args...), Error: errType})
}

// writeError maps err onto a status code by its apperr kind.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if errors.Is(err, storage.ErrNotFound) {
		kind = apperr.KindNotFound
	}

	code := http.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound:
		code = http.StatusNotFound
	case apperr.KindInvalidInput:
		code = http.StatusBadRequest
	case apperr.KindUpstreamUnavailable, apperr.KindParseFailure:
		code = http.StatusBadGateway
	case apperr.KindStoreUnavailable:
		code = http.StatusServiceUnavailable
	}
	if code >= 500 {
		slog.Error("request failed", "kind", kind, "error", err)
	}
	httpError(w, code, string(kind), "%s", err.Error())
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func parseBoolParam(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}
