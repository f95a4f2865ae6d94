package config

import (
	"os"
	"strings"
)

// ExpandEnvWithDefaults replaces ${VAR} and $VAR with the environment value.
// ${VAR:-default} falls back to default when VAR is unset or empty.
func ExpandEnvWithDefaults(s string) string {
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" || !hasDefault {
			return v
		}
		return def
	})
}
