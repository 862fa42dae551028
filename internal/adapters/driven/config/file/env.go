package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes environment variables that override configuration keys.
const EnvPrefix = "SUGGEST_"

// EnvName returns the environment variable that overrides key,
// e.g. "remote.base_url" -> "SUGGEST_REMOTE_BASE_URL".
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// ApplyEnv loads envFile into the process environment (variables already set
// win) and then overrides each of keys whose environment variable is set.
// A missing envFile is not an error. It returns the number of overridden keys.
func (s *ConfigStore) ApplyEnv(envFile string, keys ...string) (int, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	applied := 0
	for _, key := range keys {
		if val, ok := os.LookupEnv(EnvName(key)); ok {
			s.Override(key, val)
			applied++
		}
	}
	return applied, nil
}
