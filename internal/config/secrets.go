package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, appName, "secrets.json")
}

// fileSecrets reads the local secrets file, a flat JSON object of
// account -> value written with 0600 permissions.
type fileSecrets struct {
	path string
}

func (f fileSecrets) Get(account string) (string, error) {
	secrets, err := readSecrets(f.path)
	if err != nil {
		return "", err
	}
	val, ok := secrets[account]
	if !ok {
		return "", fmt.Errorf("secret %q not found", account)
	}
	return val, nil
}

func readSecrets(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets file not available: %w", err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func writeSecrets(path string, update func(map[string]string)) error {
	secrets, err := readSecrets(path)
	if err != nil || secrets == nil {
		secrets = make(map[string]string)
	}
	update(secrets)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func setSecret(path, account, value string) error {
	return writeSecrets(path, func(m map[string]string) { m[account] = value })
}

// SessionToken returns the session token saved by `kohen auth login`, or ""
// when signed out.
func SessionToken() string {
	v, err := fileSecrets{path: secretsFilePath()}.Get(accountSessionToken)
	if err != nil {
		return ""
	}
	return v
}

func SaveSessionToken(token string) error {
	return setSecret(secretsFilePath(), accountSessionToken, token)
}

func ClearSessionToken() error {
	return writeSecrets(secretsFilePath(), func(m map[string]string) { delete(m, accountSessionToken) })
}
