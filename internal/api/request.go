package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// MaxBodySize is the maximum allowed request body size (1 MB).
	MaxBodySize = 1 << 20

	// MaxIngestBodySize bounds alert batches and vendor webhooks (5 MB).
	MaxIngestBodySize = 5 << 20
)

// DecodeJSON reads and decodes a JSON request body into dst, rejecting
// unknown fields. It returns user-friendly error messages instead of
// leaking Go internals.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return decode(r, dst, MaxBodySize, true)
}

// DecodeAlertJSON decodes an ingest body. Senders often attach extra
// fields, so unknown ones are ignored.
func DecodeAlertJSON(r *http.Request, dst interface{}) error {
	return decode(r, dst, MaxIngestBodySize, false)
}

// ReadBody reads a raw body up to limit bytes
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, errors.New("request body is empty")
	}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, fmt.Errorf("request body exceeds maximum size of %d bytes", limit)
		}
		return nil, errors.New("failed to read request body")
	}
	return body, nil
}

// ParseTimeParam parses an optional RFC3339 query parameter, returning
// fallback when it is absent.
func ParseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp", name)
	}
	return t.UTC(), nil
}

func decode(r *http.Request, dst interface{}, limit int64, strict bool) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}

	r.Body = http.MaxBytesReader(nil, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		return fmt.Errorf("invalid value for field %q: expected %s", unmarshalTypeErr.Field, unmarshalTypeErr.Type)
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body exceeds maximum size of %d bytes", limit)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return fmt.Errorf("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return errors.New("invalid JSON in request body")
	}
}
