package config

import (
	"fmt"
	"log/slog"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // keychain account for secrets
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "PODIO_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.client_id", typ: kString, env: "PODIO_API_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.API.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.API.ClientID },
	},
	{
		key: "api.timeout", typ: kString, env: "PODIO_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "api.token", typ: kString, env: "PODIO_API_TOKEN",
		secret: true, account: "api_token",
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "sandbox.port", typ: kInt, env: "PODIO_SANDBOX_PORT",
		apply:   func(cfg *Config, v any) { cfg.Sandbox.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Sandbox.Port },
	},
	{
		key: "sandbox.data_dir", typ: kString, env: "PODIO_SANDBOX_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Sandbox.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Sandbox.DataDir },
	},
	{
		key: "sandbox.jwt_secret", typ: kString, env: "PODIO_SANDBOX_JWT_SECRET",
		secret: true, account: "sandbox_jwt_secret",
		apply:   func(cfg *Config, v any) { cfg.Sandbox.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Sandbox.JWTSecret },
	},
	{
		key: "log.level", typ: kString, env: "PODIO_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "output.format", typ: kString, env: "PODIO_OUTPUT_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Output.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Output.Format },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

// applyEnvOverrides applies every non-empty value returned by getenv.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	for _, s := range specs {
		raw := getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("could not parse integer from env var, using default", "var", s.env, "value", raw, "error", err)
			}
		}
	}
}

// applySecrets fills secrets still empty from the keychain.
func applySecrets(cfg *Config, kc Keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
