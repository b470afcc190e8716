package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envSource reads typed values from the layered environment. Values that fail to parse are
// recorded as problems and replaced by the fallback so Load can report all of them at once.
// Precedence is explicit map, then the process environment, then the .env file.
type envSource struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
	problems []string
}

func (e *envSource) raw(key string) string {
	if value, ok := e.explicit[key]; ok {
		return strings.TrimSpace(value)
	}
	if e.system {
		if value, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(e.dotenv[key])
}

func (e *envSource) invalid(key, reason string) {
	e.problems = append(e.problems, fmt.Sprintf("%s: %s", key, reason))
}

func (e *envSource) str(key, fallback string) string {
	if value := e.raw(key); value != "" {
		return value
	}
	return fallback
}

func (e *envSource) duration(key string, fallback time.Duration) time.Duration {
	value := e.raw(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.invalid(key, "must be a duration such as 30s or 5m")
		return fallback
	}
	return d
}

func (e *envSource) int64(key string, fallback int64) int64 {
	value := e.raw(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.invalid(key, "must be an integer")
		return fallback
	}
	return parsed
}

func (e *envSource) boolean(key string, fallback bool) bool {
	value := e.raw(key)
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	e.invalid(key, "must be a boolean")
	return fallback
}

func (e *envSource) list(key string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(e.raw(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

// ParseKeyValues reads "key=value,key2=value2". Keys are lower-cased and malformed pairs are skipped.
func ParseKeyValues(raw string) map[string]string {
	values := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		values[key] = value
	}
	return values
}

// readDotEnv parses KEY=VALUE lines. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}
