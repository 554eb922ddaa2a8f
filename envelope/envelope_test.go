package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		data string
		want bool
	}{
		{"envelope", `{"envelope_version":"1.0","nonce":"n","timestamp":1,"signature":"s","payload":"p"}`, true},
		{"version key alone", `{"envelope_version":"1.0"}`, true},
		{"ocpp call frame", `[2,"19223201","BootNotification",{"chargePointVendor":"Acme"}]`, false},
		{"plain object", `{"action":"Heartbeat"}`, false},
		{"not json", `hello`, false},
		{"empty", ``, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect([]byte(tc.data)))
		})
	}
}

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"envelope_version":"1.0","nonce":"abc","timestamp":1700000000,"signature":"deadbeef","payload":"[2,\"1\",\"Heartbeat\",{}]"}`))
	require.NoError(t, err)
	assert.Equal(t, "1.0", env.Version)
	assert.Equal(t, "abc", env.Nonce)
	assert.Equal(t, int64(1700000000), env.Timestamp)
	assert.Equal(t, "deadbeef", env.Signature)
	assert.Equal(t, `[2,"1","Heartbeat",{}]`, env.Payload)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"json array", `[2,"1","Heartbeat",{}]`},
		{"wrong nonce type", `{"envelope_version":"1.0","nonce":5,"timestamp":1,"signature":"s","payload":"p"}`},
		{"wrong payload type", `{"envelope_version":"1.0","nonce":"n","timestamp":1,"signature":"s","payload":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeMissingFields(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"no version", `{"nonce":"n","timestamp":1,"signature":"s","payload":"p"}`},
		{"no nonce", `{"envelope_version":"1.0","timestamp":1,"signature":"s","payload":"p"}`},
		{"no timestamp", `{"envelope_version":"1.0","nonce":"n","signature":"s","payload":"p"}`},
		{"no signature", `{"envelope_version":"1.0","nonce":"n","timestamp":1,"payload":"p"}`},
		{"no payload", `{"envelope_version":"1.0","nonce":"n","timestamp":1,"signature":"s"}`},
		{"null timestamp", `{"envelope_version":"1.0","nonce":"n","timestamp":null,"signature":"s","payload":"p"}`},
		{"empty object", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			assert.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestDecodeInvalidTimestamp(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"fractional", `{"envelope_version":"1.0","nonce":"n","timestamp":5.5,"signature":"s","payload":"p"}`},
		{"integral float", `{"envelope_version":"1.0","nonce":"n","timestamp":1700000000.0,"signature":"s","payload":"p"}`},
		{"quoted number", `{"envelope_version":"1.0","nonce":"n","timestamp":"1700000000","signature":"s","payload":"p"}`},
		{"exponent", `{"envelope_version":"1.0","nonce":"n","timestamp":1e9,"signature":"s","payload":"p"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			assert.ErrorIs(t, err, ErrInvalidTimestamp)
		})
	}
}

func TestDecodeNegativeTimestamp(t *testing.T) {
	// shape validation accepts any integer; the skew window rejects it later
	env, err := Decode([]byte(`{"envelope_version":"1.0","nonce":"n","timestamp":-5,"signature":"s","payload":"p"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), env.Timestamp)
}

func TestEncodeRoundTrip(t *testing.T) {
	original := &Envelope{
		Version:   Version,
		Nonce:     "8f14e45f",
		Timestamp: 1700000000,
		Signature: "cafe",
		Payload:   `[3,"1",{"currentTime":"2026-08-23T10:00:00Z"}]`,
	}
	data, err := original.Encode()
	require.NoError(t, err)
	assert.True(t, Detect(data))

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
