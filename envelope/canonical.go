package envelope

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// Canonicalize returns the canonical form of a payload for signing.
// JSON payloads are re-serialized with lexicographically sorted object keys
// and compact separators, so semantically equal documents sign identically.
// Non-JSON payloads are returned unchanged, flagged with canonical=false;
// they are signed over their raw bytes.
func Canonicalize(payload string) (string, bool) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber() // preserve number literals verbatim

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return payload, false
	}
	// trailing content beyond the first document disqualifies the payload
	if _, err := dec.Token(); err != io.EOF {
		return payload, false
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return payload, false
	}
	return strings.TrimSuffix(buf.String(), "\n"), true
}
