package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cuzdan/internal/core"
	"cuzdan/internal/log"
)

const maxBodyBytes = 1 << 20

// errMalformedBody marks request bodies that are not the expected JSON.
var errMalformedBody = errors.New("malformed request body")

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	logger := log.NewStructuredLogger(log.FromContext(r.Context()))
	var validation *core.ValidationError

	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Error())
	case errors.Is(err, errMalformedBody):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.LogError(r.Context(), "Request failed", err, op, log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", ""))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody reads a single JSON value from the request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("%w: empty body", errMalformedBody)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

// queryInt reads an integer query parameter, falling back to def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// queryWindow reads a month window size and rejects values outside
// [0, core.MaxWindowMonths].
func queryWindow(r *http.Request, key string, def int) (int, error) {
	n, err := queryInt(r, key, def)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > core.MaxWindowMonths {
		return 0, fmt.Errorf("%s must be between 0 and %d", key, core.MaxWindowMonths)
	}
	return n, nil
}

func queryBool(r *http.Request, key string, def bool) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}

// parseYearMonth extracts year and month from query parameters, defaulting
// to the month of now.
func parseYearMonth(r *http.Request, now time.Time) (year, month int, err error) {
	year, err = queryInt(r, "year", now.Year())
	if err != nil {
		return 0, 0, err
	}
	month, err = queryInt(r, "month", int(now.Month()))
	if err != nil {
		return 0, 0, err
	}
	if month < 1 || month > 12 {
		return 0, 0, core.ErrInvalidMonth
	}
	return year, month, nil
}
