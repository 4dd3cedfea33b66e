package web

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/hpungsan/fern/internal/errors"
)

// maxBodyBytes bounds request bodies. Char limits cap what reaches the
// backend, not what a client may send.
const maxBodyBytes = 4 << 20

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes a structured JSON error. Internal causes are not exposed.
func renderError(w http.ResponseWriter, err error) {
	var fErr *errors.FernError
	if !stderrors.As(err, &fErr) {
		fErr = errors.NewInternal(err)
	}

	errObj := map[string]any{
		"code":    string(fErr.Code),
		"message": fErr.Message,
		"status":  fErr.Status,
	}
	if fErr.Code != errors.ErrInternal && fErr.Details != nil {
		errObj["details"] = fErr.Details
	}
	renderJSON(w, fErr.Status, map[string]any{"error": errObj})
}

// decodeBody reads a JSON request body into T. An empty body yields the
// zero value.
func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if stderrors.Is(err, io.EOF) {
			return v, nil
		}
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return v, errors.NewInvalidRequest("request body too large")
		}
		return v, errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return v, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
