//go:build !darwin

package config

import (
	"os"
	"path/filepath"
)

// NewKeychain returns a file-backed secret store under $XDG_DATA_HOME/podio.
func NewKeychain() Keychain {
	return fileKeychain{path: secretsFilePath()}
}

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "podio", "secrets.json")
}

func secretHint() string {
	return " or the secrets file " + secretsFilePath()
}
