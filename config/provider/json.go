package provider

import (
	"encoding/json"
	"io"
	"os"
	"reflect"
	"strconv"
	"sync"

	"github.com/oddbit-project/chargebridge/config"
	"github.com/oddbit-project/chargebridge/utils"
)

const (
	ErrJsonInvalidSource = utils.Error("NewJsonProvider: Invalid source type")
)

// JsonProvider reads configuration from a JSON document; top-level keys are
// kept as raw fragments so nested nodes can be resolved lazily
type JsonProvider struct {
	config.ConfigProvider
	configData map[string]json.RawMessage
	m          sync.RWMutex
}

// NewJsonProvider builds a config.ConfigProvider from a JSON source; the source can be
// a file name, a byte slice, a json.RawMessage or an io.Reader
func NewJsonProvider(src interface{}) (config.ConfigProvider, error) {
	provider := &JsonProvider{
		configData: make(map[string]json.RawMessage),
	}
	switch v := src.(type) {
	case json.RawMessage:
		if err := json.Unmarshal(v, &provider.configData); err != nil {
			return nil, err
		}

	case io.Reader:
		if err := provider.fromReader(v); err != nil {
			return nil, err
		}

	case string:
		if err := provider.fromFile(v); err != nil {
			return nil, err
		}

	case []byte:
		if err := json.Unmarshal(v, &provider.configData); err != nil {
			return nil, err
		}

	default:
		return nil, ErrJsonInvalidSource
	}
	return provider, nil
}

func (j *JsonProvider) fromReader(src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &j.configData)
}

func (j *JsonProvider) fromFile(fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	return j.fromReader(f)
}

// applyDefaults applies default values to struct fields that have zero values
func applyDefaults(dest interface{}) error {
	v := reflect.ValueOf(dest)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		fieldValue := v.Field(i)

		if defaultVal := field.Tag.Get("default"); defaultVal != "" && fieldValue.IsZero() {
			switch fieldValue.Kind() {
			case reflect.String:
				fieldValue.SetString(defaultVal)
			case reflect.Int, reflect.Int64:
				if intVal, err := strconv.ParseInt(defaultVal, 10, 64); err == nil {
					fieldValue.SetInt(intVal)
				}
			case reflect.Bool:
				if boolVal, err := strconv.ParseBool(defaultVal); err == nil {
					fieldValue.SetBool(boolVal)
				}
			case reflect.Float64:
				if floatVal, err := strconv.ParseFloat(defaultVal, 64); err == nil {
					fieldValue.SetFloat(floatVal)
				}
			}
		}

		// Recursively apply defaults to nested structs
		if fieldValue.Kind() == reflect.Struct && fieldValue.CanAddr() {
			applyDefaults(fieldValue.Addr().Interface())
		}
	}
	return nil
}

func (j *JsonProvider) GetKey(key string, dest interface{}) error {
	j.m.RLock()
	defer j.m.RUnlock()
	if v, ok := j.configData[key]; ok {
		if err := json.Unmarshal(v, dest); err != nil {
			return err
		}
		return applyDefaults(dest)
	}
	return config.ErrNoKey
}

// Get de-serializes everything to dest
func (j *JsonProvider) Get(dest interface{}) error {
	j.m.RLock()
	defer j.m.RUnlock()
	data, err := json.Marshal(j.configData)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return err
	}
	return applyDefaults(dest)
}

func (j *JsonProvider) GetStringKey(key string) (string, error) {
	var result string
	err := j.unmarshalKey(key, &result)
	return result, err
}

func (j *JsonProvider) GetBoolKey(key string) (bool, error) {
	var result bool
	err := j.unmarshalKey(key, &result)
	return result, err
}

func (j *JsonProvider) GetIntKey(key string) (int, error) {
	var result int
	err := j.unmarshalKey(key, &result)
	return result, err
}

func (j *JsonProvider) GetFloat64Key(key string) (float64, error) {
	var result float64
	err := j.unmarshalKey(key, &result)
	return result, err
}

// GetSliceKey note: separator is ignored
func (j *JsonProvider) GetSliceKey(key, separator string) ([]string, error) {
	result := make([]string, 0)
	if err := j.unmarshalKey(key, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (j *JsonProvider) unmarshalKey(key string, dest interface{}) error {
	j.m.RLock()
	defer j.m.RUnlock()
	if v, ok := j.configData[key]; ok {
		return json.Unmarshal(v, dest)
	}
	return config.ErrNoKey
}

func (j *JsonProvider) GetConfigNode(key string) (config.ConfigProvider, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	if v, ok := j.configData[key]; ok {
		return NewJsonProvider(v)
	}
	return nil, config.ErrNoKey
}

func (j *JsonProvider) KeyExists(key string) bool {
	j.m.RLock()
	defer j.m.RUnlock()

	_, ok := j.configData[key]
	return ok
}

func (j *JsonProvider) KeyListExists(keys []string) bool {
	for _, k := range keys {
		if !j.KeyExists(k) {
			return false
		}
	}
	return true
}
