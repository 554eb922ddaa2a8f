package provider

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/gobeam/stringy"
	"github.com/oddbit-project/chargebridge/config"
)

const CommaSeparator = ","

var DefaultSeparator = CommaSeparator

// EnvProvider reads configuration from environment variables
type EnvProvider struct {
	config.ConfigProvider
	prefix      string
	configData  map[string]string
	convertCase bool // if true, key lookups are converted from localDef -> LOCAL_DEF
}

// NewEnvProvider builds a new config.ConfigProvider object from system environment variables.
// The parameter prefix defines the key prefix to use. All existing environment variables
// matching the prefix are loaded on creation.
// If convertCamelCase is enabled, string keys are automatically converted from camelCase
// format to SNAKE_CASE
func NewEnvProvider(prefix string, convertCamelCase bool) *EnvProvider {
	provider := &EnvProvider{
		prefix:      prefix,
		configData:  make(map[string]string),
		convertCase: convertCamelCase,
	}
	provider.load()
	return provider
}

func (e *EnvProvider) load() {
	for _, env := range os.Environ() {
		toks := strings.SplitN(env, "=", 2)
		if strings.HasPrefix(toks[0], e.prefix) {
			e.configData[toks[0]] = toks[1]
		}
	}
}

func (e *EnvProvider) convertKey(key string) string {
	if e.convertCase {
		tmp := stringy.New(key)
		return tmp.SnakeCase("?", "").ToUpper()
	}
	return key
}

// lookup resolves a key against the loaded environment; exact match first,
// uppercase form as fallback since env var names are conventionally uppercase
func (e *EnvProvider) lookup(key string) (string, bool) {
	if v, ok := e.configData[key]; ok {
		return v, true
	}
	v, ok := e.configData[strings.ToUpper(key)]
	return v, ok
}

// readPrefixedStruct maps environment values with the given prefix to the fields of a
// destination struct. Field names are taken from the "env" tag when present, otherwise
// from the field name itself, and joined to the prefix with an underscore.
// Nested structs are resolved recursively, with the field name extending the prefix.
// Supported scalar field types are string, int, bool, float64 and []string.
func (e *EnvProvider) readPrefixedStruct(prefix string, dest interface{}) error {
	v := reflect.ValueOf(dest)
	// unwrap pointer
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return config.ErrInvalidType
	}
	base := prefix
	if base != "" && !strings.HasSuffix(base, "_") {
		base = base + "_"
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		fieldValue := v.Field(i)
		fieldName := field.Tag.Get("env")
		if fieldName == "" {
			fieldName = field.Name
		}

		if fieldValue.Kind() == reflect.Struct {
			if fieldValue.CanAddr() {
				if err := e.readPrefixedStruct(base+fieldName, fieldValue.Addr().Interface()); err != nil {
					return err
				}
			}
			continue
		}

		envKey := base + e.convertKey(fieldName)
		val, ok := e.lookup(envKey)
		if !ok {
			continue
		}
		switch fieldValue.Kind() {
		case reflect.String:
			fieldValue.SetString(val)
		case reflect.Int, reflect.Int64:
			if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
				fieldValue.SetInt(intVal)
			}
		case reflect.Bool:
			if boolVal, err := strconv.ParseBool(val); err == nil {
				fieldValue.SetBool(boolVal)
			}
		case reflect.Float64:
			if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
				fieldValue.SetFloat(floatVal)
			}
		case reflect.Slice:
			sliceVal := reflect.MakeSlice(fieldValue.Type(), 0, 0)
			for _, s := range strings.Split(val, DefaultSeparator) {
				sliceVal = reflect.Append(sliceVal, reflect.ValueOf(strings.TrimSpace(s)))
			}
			fieldValue.Set(sliceVal)
		}
	}
	return nil
}

// readKeyInterface reads a configuration value for the specified key and maps it to the
// destination variable based on its data type. Supported types are *string, *int, *bool,
// *float64 and *[]string. Returns config.ErrNoKey if the key does not exist.
func (e *EnvProvider) readKeyInterface(key string, dest interface{}) error {
	key = e.convertKey(key)
	if _, ok := e.lookup(key); !ok {
		return config.ErrNoKey
	}
	switch dest.(type) {
	case *string:
		v, err := e.GetStringKey(key)
		if err == nil {
			reflect.ValueOf(dest).Elem().SetString(v)
		}
		return err

	case *int:
		v, err := e.GetIntKey(key)
		if err == nil {
			reflect.ValueOf(dest).Elem().SetInt(int64(v))
		}
		return err

	case *bool:
		v, err := e.GetBoolKey(key)
		if err == nil {
			reflect.ValueOf(dest).Elem().SetBool(v)
		}
		return err

	case *float64:
		v, err := e.GetFloat64Key(key)
		if err == nil {
			reflect.ValueOf(dest).Elem().SetFloat(v)
		}
		return err

	case *[]string:
		v, err := e.GetSliceKey(key, DefaultSeparator)
		if err == nil {
			reflect.ValueOf(dest).Elem().Set(reflect.ValueOf(v))
		}
		return err
	}
	return config.ErrNotImplemented
}

// Get maps the loaded environment into dest, which must be a pointer to a struct.
// Field names are prefixed with the provider prefix; nested structs extend the
// prefix with their field name. Default tags are applied to fields left unset.
func (e *EnvProvider) Get(dest interface{}) error {
	destType := reflect.TypeOf(dest)
	if destType == nil || destType.Kind() != reflect.Ptr || destType.Elem().Kind() != reflect.Struct {
		return config.ErrInvalidType
	}
	if err := e.readPrefixedStruct(e.prefix, dest); err != nil {
		return err
	}
	return applyDefaults(dest)
}

// GetKey reads an env key to an interface. If dest is a pointer to a struct, key is used
// as a prefix, and it will attempt to extract prefix+fieldName or prefix+field_env into
// the different struct fields; an empty key uses the provider prefix.
// If dest is a valid scalar type and key is a valid env var, it will extract the env
// value into the var.
func (e *EnvProvider) GetKey(key string, dest interface{}) error {
	destType := reflect.TypeOf(dest)
	if destType.Kind() == reflect.Ptr && destType.Elem().Kind() == reflect.Struct {
		if key == "" {
			key = e.prefix
		}
		if err := e.readPrefixedStruct(key, dest); err != nil {
			return err
		}
		return applyDefaults(dest)
	}
	return e.readKeyInterface(key, dest)
}

func (e *EnvProvider) GetStringKey(key string) (string, error) {
	v, ok := e.lookup(e.convertKey(key))
	if !ok {
		return "", config.ErrNoKey
	}
	return v, nil
}

func (e *EnvProvider) GetBoolKey(key string) (bool, error) {
	if v, ok := e.lookup(e.convertKey(key)); ok {
		return strconv.ParseBool(v)
	}
	return false, config.ErrNoKey
}

func (e *EnvProvider) GetIntKey(key string) (int, error) {
	if v, ok := e.lookup(e.convertKey(key)); ok {
		return strconv.Atoi(v)
	}
	return 0, config.ErrNoKey
}

func (e *EnvProvider) GetFloat64Key(key string) (float64, error) {
	if v, ok := e.lookup(e.convertKey(key)); ok {
		return strconv.ParseFloat(v, 64)
	}
	return 0, config.ErrNoKey
}

func (e *EnvProvider) GetSliceKey(key, separator string) ([]string, error) {
	if v, ok := e.lookup(e.convertKey(key)); ok {
		buf := make([]string, 0)
		for _, s := range strings.Split(v, separator) {
			buf = append(buf, strings.TrimSpace(s))
		}
		return buf, nil
	}
	return nil, config.ErrNoKey
}

func (e *EnvProvider) GetConfigNode(key string) (config.ConfigProvider, error) {
	return nil, config.ErrNotImplemented
}

func (e *EnvProvider) KeyExists(key string) bool {
	_, exists := e.lookup(e.convertKey(key))
	return exists
}

func (e *EnvProvider) KeyListExists(keys []string) bool {
	for _, k := range keys {
		if !e.KeyExists(k) {
			return false
		}
	}
	return true
}
