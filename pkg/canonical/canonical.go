// Package canonical produces stable fingerprints of request payloads.
//
// Two requests with the same logical content always hash to the same value:
// the payload is serialized to canonical JSON (object keys sorted, no
// insignificant whitespace) before digesting.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// JSON serializes v to canonical JSON: lexicographically sorted object keys
// and compact encoding. Round-tripping through map[string]any normalizes key
// order regardless of struct field order.
func JSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var normalized any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&normalized); err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical form: %w", err)
	}
	return out, nil
}

// Hash computes Base64(SHA-256(canonical JSON)) of v. It is pure and
// deterministic across processes and restarts.
func Hash(v any) (string, error) {
	canon, err := JSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
