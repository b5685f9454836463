package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/log"
)

// respondJSON writes v as a JSON response
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

// respondError renders err as {error_code, message, [retry_after_sec]} with
// the status of its code. Errors without a code are logged and rendered as a
// generic 500; declared write failures keep their coded 503.
func respondError(w http.ResponseWriter, err error) {
	var coded *errdefs.Error
	if !errors.As(err, &coded) {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("unclassified handler error")
		respondJSON(w, http.StatusInternalServerError, errdefs.New(errdefs.CodeBackendError, "internal error"))
		return
	}
	if coded.RetryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(coded.RetryAfterSec))
	}
	respondJSON(w, errdefs.HTTPStatus(coded), coded)
}

// decodeJSON parses the request body into dst, rejecting trailing garbage
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errdefs.Newf(errdefs.CodeBadRequest, "invalid JSON body: %v", err)
	}
	return nil
}

// apiKey extracts the caller credential from the request
func apiKey(r *http.Request) string {
	return r.Header.Get("x-api-key")
}

// ifMatch extracts the optimistic-concurrency header
func ifMatch(r *http.Request) string {
	return r.Header.Get("If-Match")
}
