// Package fingerprint derives the stable identity hash of an alert.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"unicode/utf8"
)

// Length is the number of hex characters in a fingerprint
const Length = 16

// volatileLabels never contribute to identity
var volatileLabels = map[string]bool{
	"timestamp":    true,
	"value":        true,
	"description":  true,
	"summary":      true,
	"generatorURL": true,
}

// Compute returns the fingerprint of an alert identity. Absent fields are
// treated as empty strings; label order does not matter. Compute never fails.
func Compute(source, name, service, host string, labels map[string]string) string {
	filtered := make(map[string]string, len(labels))
	for k, v := range labels {
		if !volatileLabels[k] {
			filtered[k] = v
		}
	}

	fields := []string{source, name, service, host}
	if !validUTF8(fields, filtered) {
		return digest(rawIdentity(fields, filtered))
	}

	identity := map[string]interface{}{
		"source":  source,
		"name":    name,
		"service": service,
		"host":    host,
	}
	if len(filtered) > 0 {
		identity["labels"] = filtered
	}

	// encoding/json sorts map keys, which gives the canonical form
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(identity)

	return digest(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:Length]
}

func validUTF8(fields []string, labels map[string]string) bool {
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return false
		}
	}
	for k, v := range labels {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return false
		}
	}
	return true
}

// rawIdentity is the canonical form for input encoding/json would rewrite
// (it maps invalid UTF-8 to U+FFFD). Every string is length-prefixed raw
// bytes, and the leading 0xff never starts the JSON form.
func rawIdentity(fields []string, labels map[string]string) []byte {
	buf := []byte{0xff}
	put := func(s string) {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	for _, f := range fields {
		put(f)
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf = binary.AppendUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		put(k)
		put(labels[k])
	}
	return buf
}
