package config

import (
	"os"
	"path/filepath"
)

// HandoffPath returns the root directory for handoff data.
// It uses $HANDOFF_PATH if set, otherwise defaults to ~/.handoff.
func HandoffPath() string {
	if v := os.Getenv("HANDOFF_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".handoff")
	}
	return filepath.Join(home, ".handoff")
}

// ConfigPath returns the path to the handoff config file.
func ConfigPath() string {
	return filepath.Join(HandoffPath(), "config.jsonc")
}

// ChainsPath returns the default directory for persisted chain state.
func ChainsPath() string {
	return filepath.Join(HandoffPath(), "chains")
}

// DotenvPath returns the path to the handoff .env file.
func DotenvPath() string {
	return filepath.Join(HandoffPath(), ".env")
}
