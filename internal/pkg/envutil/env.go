package envutil

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

var errNotBool = errors.New("not a boolean")

// lookup reads key and converts it with parse. Missing, blank, or unparsable
// values fall back to def; fallbacks are logged at debug level.
func lookup[T any](key string, def T, log *logger.Logger, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		if log != nil {
			log.Debug("env var unset, using default", "env_var", key, "default", def)
		}
		return def
	}
	val, err := parse(raw)
	if err != nil {
		if log != nil {
			log.Debug("env var unparsable, using default", "env_var", key, "provided", raw, "default", def, "error", err)
		}
		return def
	}
	return val
}

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	return lookup(key, defaultVal, log, func(s string) (string, error) { return s, nil })
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	return lookup(key, defaultVal, log, strconv.Atoi)
}

func GetEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	return lookup(key, defaultVal, log, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
		return false, errNotBool
	})
}

// GetEnvAsDuration accepts Go duration strings ("750ms") or bare milliseconds.
func GetEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	return lookup(key, defaultVal, log, func(s string) (time.Duration, error) {
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		ms, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		return time.Duration(ms) * time.Millisecond, nil
	})
}
