package env

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// RequireString returns the value of key or panics when it is not set
func RequireString(key string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		panic(fmt.Sprintf("environment variable %q is required", key))
	}

	return val
}

func String(key, def string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	return val
}

func Int(key string, def int) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	val, err := strconv.Atoi(strings.TrimSpace(valStr))
	if err != nil {
		return def
	}

	return val
}

func Int64(key string, def int64) int64 {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	val, err := strconv.ParseInt(strings.TrimSpace(valStr), 10, 64)
	if err != nil {
		return def
	}

	return val
}

func Bool(key string, def bool) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	switch strings.ToLower(valStr) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}

	return def
}

func Duration(key string, def time.Duration) time.Duration {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	val, err := time.ParseDuration(valStr)
	if err != nil {
		return def
	}

	return val
}

// Strings splits a comma separated value, dropping empty items
func Strings(key string, def []string) []string {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	var res []string
	for _, s := range strings.Split(valStr, ",") {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}

	return res
}

// URL parses an absolute URL; anything else falls back to def
func URL(key string, def *url.URL) *url.URL {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	parsed, err := url.Parse(val)
	if err != nil || !parsed.IsAbs() {
		return def
	}

	return parsed
}
