package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

const redactedValue = "[REDACTED]"

type fieldAction int

const (
	keep fieldAction = iota
	redact
	hash
)

// Substrings matched against lower-cased field keys. Operator identities are
// hashed so scans stay correlatable without exposing who scanned.
var (
	redactKeys = []string{"password", "secret", "authorization", "dsn"}
	hashKeys   = []string{"actor_id", "created_by"}
)

type redactionSettings struct {
	enabled bool
	salt    string
}

var (
	settingsOnce sync.Once
	settings     redactionSettings
)

func loadSettings() redactionSettings {
	settingsOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			settings.enabled = false
		default:
			settings.enabled = true
		}
		settings.salt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
	return settings
}

func classify(key string) fieldAction {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return keep
	}
	for _, k := range redactKeys {
		if strings.Contains(key, k) {
			return redact
		}
	}
	for _, k := range hashKeys {
		if strings.Contains(key, k) {
			return hash
		}
	}
	return keep
}

// sanitizeKVs rewrites a sugared key/value list in place of the caller's
// slice. A trailing key without a value is passed through untouched.
func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 || !loadSettings().enabled {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key := stringify(out[i])
		out[i] = key
		out[i+1] = scrub(key, out[i+1])
	}
	return out
}

func scrub(key string, val interface{}) interface{} {
	switch classify(key) {
	case redact:
		return redactedValue
	case hash:
		return hashValue(val)
	}
	if nested, ok := val.(map[string]interface{}); ok && nested != nil {
		clean := make(map[string]interface{}, len(nested))
		for k, v := range nested {
			clean[k] = scrub(k, v)
		}
		return clean
	}
	return val
}

func hashValue(val interface{}) string {
	raw := stringify(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(loadSettings().salt + raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
