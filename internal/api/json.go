package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	log "github.com/golang/glog"

	"pickbatch/internal/batching"
	"pickbatch/internal/integrations/picklist"
	"pickbatch/internal/lip"
	"pickbatch/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

var (
	errInvalidRequest = errors.New("invalid request")
	errWaveTooLarge   = errors.New("wave too large for the exact strategy")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, store.ErrInvalidCursor),
		errors.Is(err, batching.ErrInvalidOrder),
		errors.Is(err, batching.ErrInvalidBatchSize),
		errors.Is(err, batching.ErrUnknownStrategy),
		errors.Is(err, picklist.ErrMalformedRow):
		return http.StatusBadRequest
	case errors.Is(err, errWaveTooLarge),
		errors.Is(err, batching.ErrNoOrders),
		errors.Is(err, batching.ErrInfeasibleRequest),
		errors.Is(err, lip.ErrNoSolution),
		errors.Is(err, lip.ErrInfeasible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// writeError writes err as a problem. Server faults are logged and their
// detail is withheld.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		log.Errorf("%s %s: %s: %v", r.Method, r.URL.Path, title, err)
		detail = ""
	}
	writeProblem(w, status, title, detail, r.URL.Path)
}

// decodeJSON reads a size-capped JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.HTTP.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			status = http.StatusRequestEntityTooLarge
		}
		writeProblem(w, status, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}

// queryInt parses the query parameter key, returning def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errInvalidRequest, key)
	}
	return n, nil
}
