package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// settingsStore holds the non-secret values written by `kohen config set`.
type settingsStore interface {
	GetString(key string) (string, bool, error)
	GetInt(key string) (int, bool, error)
	Put(key string, val any) error
}

// settingsFile keeps each entry as raw JSON and decodes it on read, so a
// port written as 5000 or "5000" both load.
type settingsFile struct {
	path   string
	values map[string]json.RawMessage
}

func openSettings(path string) *settingsFile {
	f := &settingsFile{path: path, values: map[string]json.RawMessage{}}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		slog.Warn("settings file unreadable, using defaults", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &f.values); err != nil {
			slog.Warn("settings file is not a JSON object, using defaults", "path", path, "error", err)
			f.values = map[string]json.RawMessage{}
		}
	}
	return f
}

// settingsPath is $XDG_CONFIG_HOME/kohen/config.json, falling back to
// ~/.config.
func settingsPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName, "config.json")
}

func (f *settingsFile) GetString(key string) (string, bool, error) {
	raw, ok := f.values[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(bytes.TrimSpace(raw)), true, nil
	}
	return s, true, nil
}

func (f *settingsFile) GetInt(key string) (int, bool, error) {
	raw, ok := f.values[key]
	if !ok {
		return 0, false, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true, nil
		}
	}
	return 0, true, fmt.Errorf("%s: %s is not a whole number", key, raw)
}

// Put records key and rewrites the file through a temp file in the same
// directory.
func (f *settingsFile) Put(key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	f.values[key] = raw

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}
