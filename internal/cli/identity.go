package cli

import (
	"os"
	"path/filepath"
	"strings"
)

func defaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "smechat", "client_key")
}

// loadIdentity returns the stored client key, or "" when there is none yet.
func loadIdentity(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveIdentity(path, key string) error {
	if path == "" || key == "" || loadIdentity(path) == key {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(key+"\n"), 0o600)
}
