package config

import (
	"fmt"
	"strconv"
	"time"
)

// Setting is one row of `kohen config show`.
type Setting struct {
	Key   string
	Env   string
	Value string
}

// Settings lists every non-secret key with its effective value in cfg.
func Settings(cfg Config) []Setting {
	out := make([]Setting, 0, len(specs))
	for _, s := range specs {
		if !s.secret {
			out = append(out, Setting{Key: s.key, Env: s.env, Value: fmt.Sprint(s.extract(cfg))})
		}
	}
	return out
}

// SettableKeys names the keys Set accepts.
func SettableKeys() []string {
	var keys []string
	for _, s := range Settings(Config{}) {
		keys = append(keys, s.Key)
	}
	return keys
}

// Set validates value against key's type and stores it in the settings file.
// Secrets are refused; they live in the environment or the secrets file.
func Set(key, value string) error {
	return putSetting(openSettings(settingsPath()), key, value)
}

func putSetting(store settingsStore, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("%s is a secret; set %s instead", key, s.env)
	}
	v, err := s.typ.parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return store.Put(key, v)
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse checks a command-line value; durations are stored in their text form.
func (t keyType) parse(value string) (any, error) {
	switch t {
	case kInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("want a whole number, got %q", value)
		}
		return n, nil
	case kDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("want a duration like 30s, got %q", value)
		}
	}
	return value, nil
}
