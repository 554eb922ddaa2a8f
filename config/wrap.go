package config

import (
	"path/filepath"
	"strings"

	"github.com/oddbit-project/chargebridge/utils/fs"
)

// StrOrFile attempts to identify a valid file path from value; if value starts with "/" or "./"
// it will attempt to read the file contents and return it instead, with surrounding whitespace
// trimmed. If no file is found (either value does not start with "/" or "./", or file does not
// exist), value is returned.
func StrOrFile(value string) string {
	if strings.HasPrefix(value, string(filepath.Separator)) || strings.HasPrefix(value, "."+string(filepath.Separator)) {
		if content, err := fs.ReadString(value); err == nil {
			return content
		}
	}
	return value
}
