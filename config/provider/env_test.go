package provider

import (
	"os"
	"reflect"
	"testing"

	"github.com/oddbit-project/chargebridge/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	envPrefix      = "PROXY_"
	envSecretValue = "SuperSecretKey123"
	envBoolValue   = "true"
	envIntValue    = "5"
	envFloatValue  = "0.5"
	envListValue   = "BootNotification, Heartbeat,StartTransaction,StopTransaction"
)

var expectedOrderValue = []string{"BootNotification", "Heartbeat", "StartTransaction", "StopTransaction"}

type envProxyConfig struct {
	SecretKey     string   `env:"SECRET_KEY"`
	Strict        bool     `env:"STRICT"`
	FloodLimit    int      `env:"FLOOD_LIMIT"`
	SampleRate    float64  `env:"SAMPLE_RATE"`
	ExpectedOrder []string `env:"EXPECTED_ORDER"`
}

type envListenerConfig struct {
	Addr        string `env:"ADDR"`
	Subprotocol string `env:"SUBPROTOCOL"`
}

type envNestedConfig struct {
	SecretKey string `env:"SECRET_KEY"`
	Listener  envListenerConfig
}

// Test struct with default values
type envConfigWithDefaults struct {
	SecretKey  string `env:"SECRET_KEY" default:"changeme"`
	FloodLimit int    `env:"FLOOD_LIMIT" default:"5"`
	Strict     bool   `env:"STRICT" default:"false"`
	ListenAddr string `env:"LISTEN_ADDR" default:"0.0.0.0:9090"`
}

var envVars = map[string]string{
	"PROXY_SECRET_KEY":     envSecretValue,
	"PROXY_STRICT":         envBoolValue,
	"PROXY_FLOOD_LIMIT":    envIntValue,
	"PROXY_SAMPLE_RATE":    envFloatValue,
	"PROXY_EXPECTED_ORDER": envListValue,
}

var nestedEnvVars = map[string]string{
	"PROXY_SECRET_KEY":           envSecretValue,
	"PROXY_LISTENER_ADDR":        "0.0.0.0:9090",
	"PROXY_LISTENER_SUBPROTOCOL": "ocpp1.6",
}

func setEnvVars(t *testing.T, vars map[string]string) {
	for k, v := range vars {
		if _, exists := os.LookupEnv(k); exists {
			t.Fatalf("setEnvVars(): env var '%s' already exists", k)
		}
		require.NoError(t, os.Setenv(k, v))
	}
}

func resetEnvVars(vars map[string]string) {
	for k := range vars {
		os.Unsetenv(k)
	}
}

func TestNewEnvProvider(t *testing.T) {
	setEnvVars(t, envVars)
	defer resetEnvVars(envVars)

	cfg := NewEnvProvider(envPrefix, false)
	keys := make([]string, 0)
	for k := range envVars {
		keys = append(keys, k)
	}
	assert.True(t, cfg.KeyListExists(keys), "failed loading env vars")
}

func TestEnvProvider_GetBoolKey(t *testing.T) {
	setEnvVars(t, envVars)
	defer resetEnvVars(envVars)

	cfg := NewEnvProvider(envPrefix, false)
	b, err := cfg.GetBoolKey("PROXY_STRICT")
	require.NoError(t, err)
	assert.True(t, b)

	// attempt to read invalid value
	_, err = cfg.GetBoolKey("PROXY_SECRET_KEY")
	assert.Error(t, err, "non-bool should return error")

	// attempt to read camelcase
	cfg = NewEnvProvider(envPrefix, true)
	b, err = cfg.GetBoolKey("proxyStrict")
	require.NoError(t, err)
	assert.True(t, b)
}

func TestEnvProvider_GetConfigNode(t *testing.T) {
	setEnvVars(t, envVars)
	defer resetEnvVars(envVars)

	cfg := NewEnvProvider(envPrefix, false)
	node, err := cfg.GetConfigNode("PROXY_SECRET_KEY")
	assert.ErrorIs(t, err, config.ErrNotImplemented)
	assert.Nil(t, node)
}

func TestEnvProvider_GetScalarKeys(t *testing.T) {
	setEnvVars(t, envVars)
	defer resetEnvVars(envVars)

	cfg := NewEnvProvider(envPrefix, false)

	v, err := cfg.GetStringKey("PROXY_SECRET_KEY")
	require.NoError(t, err)
	assert.Equal(t, envSecretValue, v)

	i, err := cfg.GetIntKey("PROXY_FLOOD_LIMIT")
	require.NoError(t, err)
	assert.Equal(t, 5, i)

	f, err := cfg.GetFloat64Key("PROXY_SAMPLE_RATE")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	// attempt to read invalid values
	_, err = cfg.GetIntKey("PROXY_SECRET_KEY")
	assert.Error(t, err, "non-int should return error")
	_, err = cfg.GetFloat64Key("PROXY_SECRET_KEY")
	assert.Error(t, err, "non-float64 should return error")

	// missing key
	_, err = cfg.GetStringKey("PROXY_MISSING")
	assert.ErrorIs(t, err, config.ErrNoKey)

	// camelCase keys
	cfg = NewEnvProvider(envPrefix, true)
	v, err = cfg.GetStringKey("proxySecretKey")
	require.NoError(t, err)
	assert.Equal(t, envSecretValue, v)
}

func TestEnvProvider_GetKey(t *testing.T) {
	setEnvVars(t, envVars)
	defer resetEnvVars(envVars)

	cfg := NewEnvProvider(envPrefix, false)

	var secret string
	var strict bool
	var limit int
	var rate float64
	var order []string

	require.NoError(t, cfg.GetKey("PROXY_SECRET_KEY", &secret))
	assert.Equal(t, envSecretValue, secret)

	require.NoError(t, cfg.GetKey("PROXY_STRICT", &strict))
	assert.True(t, strict)

	require.NoError(t, cfg.GetKey("PROXY_FLOOD_LIMIT", &limit))
	assert.Equal(t, 5, limit)

	require.NoError(t, cfg.GetKey("PROXY_SAMPLE_RATE", &rate))
	assert.Equal(t, 0.5, rate)

	require.NoError(t, cfg.GetKey("PROXY_EXPECTED_ORDER", &order))
	assert.True(t, reflect.DeepEqual(order, expectedOrderValue), "string slice value mismatch")

	// missing key
	assert.ErrorIs(t, cfg.GetKey("PROXY_MISSING", &secret), config.ErrNoKey)
}

func TestEnvProvider_GetKey_Struct(t *testing.T) {
	setEnvVars(t, envVars)
	defer resetEnvVars(envVars)

	cfg := NewEnvProvider(envPrefix, false)
	dest := &envProxyConfig{}
	require.NoError(t, cfg.GetKey("", dest))

	assert.Equal(t, envSecretValue, dest.SecretKey)
	assert.True(t, dest.Strict)
	assert.Equal(t, 5, dest.FloodLimit)
	assert.Equal(t, 0.5, dest.SampleRate)
	assert.True(t, reflect.DeepEqual(dest.ExpectedOrder, expectedOrderValue), "string slice value mismatch")
}

func TestEnvProvider_Get_NestedStruct(t *testing.T) {
	setEnvVars(t, nestedEnvVars)
	defer resetEnvVars(nestedEnvVars)

	cfg := NewEnvProvider(envPrefix, false)
	nested := &envNestedConfig{}
	require.NoError(t, cfg.Get(nested))

	assert.Equal(t, envSecretValue, nested.SecretKey)
	assert.Equal(t, "0.0.0.0:9090", nested.Listener.Addr)
	assert.Equal(t, "ocpp1.6", nested.Listener.Subprotocol)
}

func TestEnvProvider_Get_InvalidDest(t *testing.T) {
	cfg := NewEnvProvider(envPrefix, false)

	var scalar int
	assert.ErrorIs(t, cfg.Get(&scalar), config.ErrInvalidType)
	assert.ErrorIs(t, cfg.Get(nil), config.ErrInvalidType)
}

func TestEnvProvider_GetSliceKey(t *testing.T) {
	setEnvVars(t, envVars)
	defer resetEnvVars(envVars)

	cfg := NewEnvProvider(envPrefix, false)
	v, err := cfg.GetSliceKey("PROXY_EXPECTED_ORDER", ",")
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(v, expectedOrderValue), "value mismatch")

	cfg = NewEnvProvider(envPrefix, true)
	_, err = cfg.GetSliceKey("proxyExpectedOrder", ",")
	require.NoError(t, err)
}

func TestEnvProvider_KeyExists(t *testing.T) {
	setEnvVars(t, envVars)
	defer resetEnvVars(envVars)

	cfg := NewEnvProvider(envPrefix, false)
	for k := range envVars {
		assert.True(t, cfg.KeyExists(k), "existing key not found")
	}
	assert.False(t, cfg.KeyExists("NON-EXISTING"), "non-existing key mismatch")

	keys := make([]string, 0)
	for k := range envVars {
		keys = append(keys, k)
	}
	assert.True(t, cfg.KeyListExists(keys), "existing keys result mismatch")
	assert.False(t, cfg.KeyListExists(append(keys, "")), "non-existing keys result mismatch")
}

// Test for default values functionality
func TestEnvProvider_DefaultValues(t *testing.T) {
	// Set only some env vars, leaving others to use defaults
	testVars := map[string]string{
		"PROXY_SECRET_KEY":  "from-env",
		"PROXY_FLOOD_LIMIT": "10",
	}

	setEnvVars(t, testVars)
	defer resetEnvVars(testVars)

	cfg := NewEnvProvider(envPrefix, false)
	dest := &envConfigWithDefaults{}
	require.NoError(t, cfg.Get(dest))

	// env vars win
	assert.Equal(t, "from-env", dest.SecretKey)
	assert.Equal(t, 10, dest.FloodLimit)

	// defaults fill the rest
	assert.Equal(t, false, dest.Strict)
	assert.Equal(t, "0.0.0.0:9090", dest.ListenAddr)
}
