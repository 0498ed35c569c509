package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// secretService is the keychain service name secrets are stored under.
const secretService = "podio"

type Config struct {
	API     APIConfig
	Sandbox SandboxConfig
	Log     LogConfig
	Output  OutputConfig
}

type APIConfig struct {
	BaseURL  string
	ClientID string
	Timeout  string
	Token    string
}

// TimeoutDuration parses Timeout.
func (c APIConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid api.timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

type SandboxConfig struct {
	Port      int
	DataDir   string
	JWTSecret string
}

type LogConfig struct {
	Level string
}

type OutputConfig struct {
	Format string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:  "https://api.podio.com",
			ClientID: "podio-cli",
			Timeout:  "30s",
		},
		Sandbox: SandboxConfig{
			Port:    4080,
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Output: OutputConfig{
			Format: "json",
		},
	}
}

// Load reads configuration in increasing order of precedence: defaults, the
// JSON config file at $XDG_CONFIG_HOME/podio/config.json, a .env file in the
// working directory, PODIO_* environment variables. Secrets still unset
// after that are read from the platform secret store.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), NewKeychain(), ".env")
}

func loadWith(b ConfigBackend, kc Keychain, dotenvPath string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	dotenv, err := readDotEnv(dotenvPath)
	if err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg, func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	})

	applySecrets(&cfg, kc)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vals, nil
}

func validate(cfg Config) error {
	switch cfg.Output.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("invalid output.format %q: want json or yaml", cfg.Output.Format)
	}
	if _, err := cfg.API.TimeoutDuration(); err != nil {
		return err
	}
	if cfg.Sandbox.Port <= 0 || cfg.Sandbox.Port > 65535 {
		return fmt.Errorf("invalid sandbox.port %d", cfg.Sandbox.Port)
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "podio-data"
		}
	}
	return filepath.Join(dir, "podio")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "podio", "config.json")
}
