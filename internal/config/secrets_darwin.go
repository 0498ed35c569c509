//go:build darwin

package config

import (
	"fmt"
	"os/exec"
	"strings"
)

// macKeychain shells out to the security CLI.
type macKeychain struct{}

// NewKeychain returns the macOS Keychain.
func NewKeychain() Keychain {
	return macKeychain{}
}

func (macKeychain) Get(service, account string) (string, error) {
	out, err := exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
	if err != nil {
		return "", fmt.Errorf("keychain lookup %s/%s: %w", service, account, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (macKeychain) Set(service, account, value string) error {
	out, err := exec.Command(
		"security", "add-generic-password",
		"-U",
		"-s", service,
		"-a", account,
		"-w", value,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("keychain store %s/%s: %w: %s", service, account, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func secretHint() string {
	return " or macOS Keychain (service: podio)"
}
