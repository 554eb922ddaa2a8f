package env

import (
	"os"
	"sync"
)

var (
	mu    sync.Mutex
	cache = make(map[string]string)
)

// GetEnvVar returns the value of an environment variable; the first read of a
// given name is cached, so later changes to the process environment are not
// visible (secrets are often cleared from the environment after first read)
func GetEnvVar(name string) string {
	mu.Lock()
	defer mu.Unlock()
	if v, ok := cache[name]; ok {
		return v
	}
	v := os.Getenv(name)
	if v != "" {
		cache[name] = v
	}
	return v
}

// SetEnvVar sets an environment variable and updates the cached value
func SetEnvVar(name, value string) error {
	mu.Lock()
	defer mu.Unlock()
	if err := os.Setenv(name, value); err != nil {
		return err
	}
	cache[name] = value
	return nil
}
