package envelope

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/chargebridge/crypt/secure"
	"github.com/oddbit-project/chargebridge/envelope/store"
)

const testSigningSecret = "SuperSecretKey123"

var testEpoch = time.Unix(1700000000, 0)

func testCredential(t *testing.T) *secure.Credential {
	t.Helper()
	key, err := secure.GenerateKey()
	require.NoError(t, err)
	cred, err := secure.NewCredential([]byte(testSigningSecret), key, false)
	require.NoError(t, err)
	return cred
}

// sequentialNonces returns a deterministic nonce generator
func sequentialNonces() func() string {
	i := 0
	return func() string {
		i++
		return fmt.Sprintf("nonce-%d", i)
	}
}

func newTestCodec(t *testing.T, opts ...CodecOption) *Codec {
	t.Helper()
	base := []CodecOption{
		WithClock(func() time.Time { return testEpoch }),
		WithNonceGenerator(sequentialNonces()),
	}
	return NewCodec(testCredential(t), append(base, opts...)...)
}

// expectedSignature recomputes the reference HMAC independently of the codec
func expectedSignature(payload, nonce string, timestamp int64) string {
	canonical, _ := Canonicalize(payload)
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	mac.Write([]byte(canonical + nonce + fmt.Sprintf("%d", timestamp)))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCodecWrap(t *testing.T) {
	codec := newTestCodec(t)

	payload := `[2,"19223201","BootNotification",{"chargePointVendor":"Acme","chargePointModel":"CP-1"}]`
	env, err := codec.Wrap(payload)
	require.NoError(t, err)

	assert.Equal(t, Version, env.Version)
	assert.Equal(t, "nonce-1", env.Nonce)
	assert.Equal(t, testEpoch.Unix(), env.Timestamp)
	assert.Equal(t, payload, env.Payload)
	assert.Equal(t, expectedSignature(payload, "nonce-1", testEpoch.Unix()), env.Signature)
}

func TestCodecWrapNonJSONPayload(t *testing.T) {
	codec := newTestCodec(t)

	env, err := codec.Wrap("not a json frame")
	require.NoError(t, err)
	assert.Equal(t, expectedSignature("not a json frame", "nonce-1", testEpoch.Unix()), env.Signature)
}

func TestCodecSealUnwrap(t *testing.T) {
	sender := newTestCodec(t)
	receiver := newTestCodec(t)

	payload := `[2,"42","Heartbeat",{}]`
	data, err := sender.Seal(payload)
	require.NoError(t, err)
	assert.True(t, Detect(data))

	got, err := receiver.Unwrap(data)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCodecVerifyCanonicalEquivalence(t *testing.T) {
	sender := newTestCodec(t)

	env, err := sender.Wrap(`{"connectorId":1,"idTag":"ABC123"}`)
	require.NoError(t, err)

	// reordering keys does not change the canonical form, so the
	// signature still holds
	env.Payload = `{"idTag":"ABC123","connectorId":1}`
	receiver := newTestCodec(t)
	assert.NoError(t, receiver.Verify(env))
}

func TestCodecVerifyTamperedPayload(t *testing.T) {
	sender := newTestCodec(t)

	env, err := sender.Wrap(`[2,"7","StartTransaction",{"connectorId":1}]`)
	require.NoError(t, err)
	env.Payload = `[2,"7","StartTransaction",{"connectorId":2}]`

	receiver := newTestCodec(t)
	assert.ErrorIs(t, receiver.Verify(env), ErrSignatureMismatch)
}

func TestCodecVerifyTamperedSignature(t *testing.T) {
	sender := newTestCodec(t)

	env, err := sender.Wrap(`[2,"7","Heartbeat",{}]`)
	require.NoError(t, err)
	env.Signature = expectedSignature("other payload", env.Nonce, env.Timestamp)

	receiver := newTestCodec(t)
	assert.ErrorIs(t, receiver.Verify(env), ErrSignatureMismatch)
}

func TestCodecVerifyUppercaseSignatureRejected(t *testing.T) {
	sender := newTestCodec(t)

	env, err := sender.Wrap(`[2,"7","Heartbeat",{}]`)
	require.NoError(t, err)
	// comparison is over the verbatim hex string, not the decoded bytes
	env.Signature = strings.ToUpper(env.Signature)

	receiver := newTestCodec(t)
	assert.ErrorIs(t, receiver.Verify(env), ErrSignatureMismatch)
}

func TestCodecVerifyReplay(t *testing.T) {
	sender := newTestCodec(t)
	receiver := newTestCodec(t)

	data, err := sender.Seal(`[2,"1","Heartbeat",{}]`)
	require.NoError(t, err)

	_, err = receiver.Unwrap(data)
	require.NoError(t, err)

	_, err = receiver.Unwrap(data)
	assert.ErrorIs(t, err, ErrNonceReplayed)
}

func TestCodecVerifySkewWindow(t *testing.T) {
	cases := []struct {
		name   string
		offset time.Duration
		err    error
	}{
		{"exact now", 0, nil},
		{"at past boundary", -DefaultAllowedSkew, nil},
		{"at future boundary", DefaultAllowedSkew, nil},
		{"past boundary exceeded", -DefaultAllowedSkew - time.Second, ErrTimestampSkew},
		{"future boundary exceeded", DefaultAllowedSkew + time.Second, ErrTimestampSkew},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := newTestCodec(t, WithClock(func() time.Time { return testEpoch.Add(tc.offset) }))
			receiver := newTestCodec(t)

			env, err := sender.Wrap(`[2,"1","Heartbeat",{}]`)
			require.NoError(t, err)

			err = receiver.Verify(env)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCodecNonceBurnedBeforeSignatureCheck(t *testing.T) {
	receiver := newTestCodec(t)

	// first attempt carries a fresh nonce but a bad signature
	forged := &Envelope{
		Version:   Version,
		Nonce:     "nonce-1",
		Timestamp: testEpoch.Unix(),
		Signature: "0000",
		Payload:   `[2,"1","Heartbeat",{}]`,
	}
	assert.ErrorIs(t, receiver.Verify(forged), ErrSignatureMismatch)

	// a correctly signed retry with the same nonce is now a replay
	valid := &Envelope{
		Version:   Version,
		Nonce:     "nonce-1",
		Timestamp: testEpoch.Unix(),
		Signature: expectedSignature(`[2,"1","Heartbeat",{}]`, "nonce-1", testEpoch.Unix()),
		Payload:   `[2,"1","Heartbeat",{}]`,
	}
	assert.ErrorIs(t, receiver.Verify(valid), ErrNonceReplayed)
}

func TestCodecSkewCheckedBeforeNonce(t *testing.T) {
	receiver := newTestCodec(t)

	staleTS := testEpoch.Add(-DefaultAllowedSkew - time.Minute).Unix()
	stale := &Envelope{
		Version:   Version,
		Nonce:     "nonce-1",
		Timestamp: staleTS,
		Signature: expectedSignature(`[2,"1","Heartbeat",{}]`, "nonce-1", staleTS),
		Payload:   `[2,"1","Heartbeat",{}]`,
	}
	assert.ErrorIs(t, receiver.Verify(stale), ErrTimestampSkew)

	// the nonce was not consumed by the skew rejection
	fresh := &Envelope{
		Version:   Version,
		Nonce:     "nonce-1",
		Timestamp: testEpoch.Unix(),
		Signature: expectedSignature(`[2,"1","Heartbeat",{}]`, "nonce-1", testEpoch.Unix()),
		Payload:   `[2,"1","Heartbeat",{}]`,
	}
	assert.NoError(t, receiver.Verify(fresh))
}

func TestCodecUnwrapShapeErrors(t *testing.T) {
	receiver := newTestCodec(t)

	cases := []struct {
		name string
		data string
		err  error
	}{
		{"garbage", `{{`, ErrMalformed},
		{"ocpp frame", `[2,"1","Heartbeat",{}]`, ErrMalformed},
		{"missing signature", `{"envelope_version":"1.0","nonce":"n","timestamp":1700000000,"payload":"p"}`, ErrMissingField},
		{"float timestamp", `{"envelope_version":"1.0","nonce":"n","timestamp":1700000000.0,"signature":"s","payload":"p"}`, ErrInvalidTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := receiver.Unwrap([]byte(tc.data))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestCodecClearedSecret(t *testing.T) {
	cred := testCredential(t)
	codec := NewCodec(cred,
		WithClock(func() time.Time { return testEpoch }),
		WithNonceGenerator(sequentialNonces()))

	cred.Clear()
	_, err := codec.Wrap(`[2,"1","Heartbeat",{}]`)
	assert.ErrorIs(t, err, secure.ErrEmptyCredential)
}

func TestCodecSharedNonceStore(t *testing.T) {
	// two codecs sharing one store reject each other's replays
	shared := store.NewMemoryNonceStore()
	a := newTestCodec(t, WithNonceStore(shared))
	b := newTestCodec(t, WithNonceStore(shared))

	sender := newTestCodec(t)
	data, err := sender.Seal(`[2,"1","Heartbeat",{}]`)
	require.NoError(t, err)

	_, err = a.Unwrap(data)
	require.NoError(t, err)
	_, err = b.Unwrap(data)
	assert.ErrorIs(t, err, ErrNonceReplayed)
}

func TestCodecWithStore(t *testing.T) {
	// rebinding the store isolates replay detection while keeping the secret
	base := newTestCodec(t)
	a := base.WithStore(store.NewMemoryNonceStore())
	b := base.WithStore(store.NewMemoryNonceStore())

	sender := newTestCodec(t)
	data, err := sender.Seal(`[2,"1","Heartbeat",{}]`)
	require.NoError(t, err)

	_, err = a.Unwrap(data)
	require.NoError(t, err)

	// a different store accepts the same nonce again
	_, err = b.Unwrap(data)
	require.NoError(t, err)

	// within one store it is still a replay
	_, err = a.Unwrap(data)
	assert.ErrorIs(t, err, ErrNonceReplayed)
}
