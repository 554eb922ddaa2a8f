package config

import "github.com/oddbit-project/chargebridge/utils"

const (
	ErrNoKey          = utils.Error("Config key does not exist")
	ErrNotImplemented = utils.Error("Config method or type not implemented")
	ErrInvalidType    = utils.Error("Invalid destination type")
)

// ConfigProvider is the read interface shared by the JSON file and
// environment backends. Get unmarshals the whole source into dest, GetKey a
// single section; the typed getters return ErrNoKey for absent keys so
// callers can fall back to section defaults. GetConfigNode descends into a
// nested section and returns it as a provider of its own.
type ConfigProvider interface {
	Get(dest interface{}) error
	GetKey(key string, dest interface{}) error
	GetStringKey(key string) (string, error)
	GetBoolKey(key string) (bool, error)
	GetIntKey(key string) (int, error)
	GetFloat64Key(key string) (float64, error)
	GetSliceKey(key, separator string) ([]string, error)
	GetConfigNode(key string) (ConfigProvider, error)
	KeyExists(key string) bool
	KeyListExists(keys []string) bool
}
