package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ParseIntQuery reads a non-negative integer query parameter.
// Returns (0, false, true) when the parameter is absent, or writes a 400 and
// returns ok=false when it is malformed.
func ParseIntQuery(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (value int, present bool, ok bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, logger, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false, false
	}
	return n, true, true
}

// ParseScoreQuery reads a relevance score query parameter within [0, 1].
func ParseScoreQuery(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (value float64, present bool, ok bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		writeError(w, logger, http.StatusBadRequest, "invalid_"+name, name+" must be a number between 0 and 1")
		return 0, false, false
	}
	return f, true, true
}

// ParseBoolQuery reads a boolean query parameter, returning def when absent.
func ParseBoolQuery(w http.ResponseWriter, r *http.Request, name string, def bool, logger *zap.Logger) (bool, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, true
	}
	b, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_"+name, name+" must be true or false")
		return false, false
	}
	return b, true
}
