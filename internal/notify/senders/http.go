// Package senders renders incident messages for each channel type and
// delivers them.
package senders

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/akmatori/responder/internal/database"
)

const (
	userAgent      = "Responder/1.0"
	defaultTimeout = 10 * time.Second
)

// newHTTPClient returns the JSON client shared by the HTTP senders. Retries
// are left to the dispatcher's breaker.
func newHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", userAgent)
}

// checkResponse turns a transport error or non-2xx status into an error
func checkResponse(what string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s request failed: %w", what, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("%s returned status %d: %s", what, resp.StatusCode(), truncateBody(resp.String()))
	}
	return nil
}

func truncateBody(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// configString reads a string value from channel config
func configString(cfg database.JSONB, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// configStrings reads a list of strings, accepting a JSON array or a
// comma separated string
func configStrings(cfg database.JSONB, key string) []string {
	var out []string
	switch v := cfg[key].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// configMap reads a string map, e.g. custom headers
func configMap(cfg database.JSONB, key string) map[string]string {
	out := make(map[string]string)
	switch v := cfg[key].(type) {
	case map[string]interface{}:
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	}
	return out
}
