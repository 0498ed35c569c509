package config

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNoToken is returned by RequireToken when no access token is configured.
var ErrNoToken = errors.New("missing required config: API access token")

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a non-secret config key to the config file.
func SetKey(key, value string) error {
	return setKey(newFileBackend(configFilePath()), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s or set-secret", key, s.env)
	}
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return b.SetInt(key, i)
	default:
		return b.SetString(key, value)
	}
}

// SetSecret stores a secret key (api.token, sandbox.jwt_secret) in kc.
func SetSecret(kc Keychain, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok || !s.secret {
		return fmt.Errorf("%q is not a secret config key", key)
	}
	return kc.Set(secretService, s.account, value)
}

// ValidKeys returns the non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// RequireToken returns the configured access token or a hint on where to
// provide one.
func RequireToken(cfg Config) (string, error) {
	if cfg.API.Token == "" {
		return "", fmt.Errorf("%w. Set it via environment variable PODIO_API_TOKEN%s", ErrNoToken, secretHint())
	}
	return cfg.API.Token, nil
}
