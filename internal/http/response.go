package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog"
)

// maxBodyBytes caps JSON request bodies accepted by the API handlers.
const maxBodyBytes = 64 << 10

// ErrorResponse is the error body shared by all JSON endpoints.
type ErrorResponse struct {
	Msg  string `json:"msg"`
	Data []any  `json:"data"`
}

// RespondJSON writes payload as JSON with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

// RespondError writes {msg, data: []}.
func RespondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	RespondJSON(w, r, status, ErrorResponse{Msg: msg, Data: []any{}})
}

// ErrUnsupportedMediaType is returned by DecodeJSON when the request is not
// application/json. Simple cross-site form posts cannot set that type.
var ErrUnsupportedMediaType = errors.New("content type must be application/json")

// DecodeJSON reads an application/json request body into v. An empty body
// leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ErrUnsupportedMediaType
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// RespondDecodeError answers a DecodeJSON failure: 415 for the wrong content
// type, 400 otherwise.
func RespondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrUnsupportedMediaType) {
		RespondError(w, r, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	RespondError(w, r, http.StatusBadRequest, "Invalid request body")
}
