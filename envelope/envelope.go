package envelope

import (
	"encoding/json"
	"strconv"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	// Version is the envelope format version written by this codec
	Version = "1.0"

	ErrMalformed         = utils.Error("malformed envelope")
	ErrMissingField      = utils.Error("envelope field missing")
	ErrInvalidTimestamp  = utils.Error("envelope timestamp is not an integer")
	ErrTimestampSkew     = utils.Error("envelope timestamp outside allowed skew")
	ErrNonceReplayed     = utils.Error("envelope nonce already seen")
	ErrSignatureMismatch = utils.Error("envelope signature mismatch")
)

// Envelope is the signed wrapper carried between proxy and central system.
// Payload holds the original OCPP frame verbatim; the signature covers its
// canonical form, the nonce and the decimal timestamp.
type Envelope struct {
	Version   string `json:"envelope_version"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	Payload   string `json:"payload"`
}

// envelopeWire mirrors Envelope with pointer fields so absent keys can be
// told apart from zero values, and with a raw timestamp so non-integer
// values are rejected instead of truncated.
type envelopeWire struct {
	Version   *string          `json:"envelope_version"`
	Nonce     *string          `json:"nonce"`
	Timestamp *json.RawMessage `json:"timestamp"`
	Signature *string          `json:"signature"`
	Payload   *string          `json:"payload"`
}

// Detect reports whether data is an envelope, identified by the presence of
// the envelope_version key in a JSON object. Plain OCPP frames are JSON
// arrays and never match.
func Detect(data []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	_, ok := doc["envelope_version"]
	return ok
}

// Decode parses an envelope and validates its shape. It returns ErrMalformed
// when data is not a JSON object or a field has the wrong type,
// ErrMissingField when a required key is absent, and ErrInvalidTimestamp when
// the timestamp is not an integer. Signature and freshness are checked
// separately by Codec.Verify.
func Decode(data []byte) (*Envelope, error) {
	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, ErrMalformed
	}
	if wire.Version == nil || wire.Nonce == nil || wire.Timestamp == nil ||
		wire.Signature == nil || wire.Payload == nil {
		return nil, ErrMissingField
	}
	ts, err := parseIntegerTimestamp(*wire.Timestamp)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Version:   *wire.Version,
		Nonce:     *wire.Nonce,
		Timestamp: ts,
		Signature: *wire.Signature,
		Payload:   *wire.Payload,
	}, nil
}

// parseIntegerTimestamp accepts only bare integer literals; floats such as
// 5.0 and quoted numbers are rejected.
func parseIntegerTimestamp(raw json.RawMessage) (int64, error) {
	ts, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, ErrInvalidTimestamp
	}
	return ts, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
