package fs

import (
	"os"
	"strings"
)

// FileExists reports whether filename exists and is a regular file; every
// Stat failure is treated as absence
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ReadString reads a file as a string, trimming spaces, tabs and newlines
// from both ends so secret files may carry a trailing newline
func ReadString(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return strings.Trim(string(data), " \t\n"), nil
}
