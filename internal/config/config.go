package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config aggregates every tunable of the server.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Core      CoreConfig      `toml:"core"`
	Admission AdmissionConfig `toml:"admission"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// CoreConfig tunes the routing hub.
type CoreConfig struct {
	// CommandTimeoutSeconds bounds how long a dispatched command may go
	// unanswered.
	CommandTimeoutSeconds int `toml:"command_timeout_seconds"`

	// NicknameMaxLen truncates identifying nicknames.
	NicknameMaxLen int `toml:"nickname_max_len"`

	// AdminNames lists the nicknames that identify into the admin role.
	AdminNames []string `toml:"admin_names"`

	// RetainEmptyRooms keeps empty rooms instead of reclaiming them.
	RetainEmptyRooms bool `toml:"retain_empty_rooms"`

	// CancelTimerOnOverwrite stops a superseded command's timeout timer
	// instead of letting it fire harmlessly.
	CancelTimerOnOverwrite bool `toml:"cancel_timer_on_overwrite"`
}

// CommandTimeout returns the configured timeout as a duration.
func (c CoreConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// AdmissionConfig tunes connect-time gatekeeping.
type AdmissionConfig struct {
	WindowSeconds int `toml:"window_seconds"`
	MaxPerWindow  int `toml:"max_per_window"`
	MaxConns      int `toml:"max_conns"`
}

// Window returns the fixed rate window as a duration.
func (c AdmissionConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// Load resolves configuration in three layers: defaults, then an optional
// TOML file named by SWITCHYARD_CONFIG, then environment variables on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("SWITCHYARD_CONFIG")); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Core: CoreConfig{
			CommandTimeoutSeconds: 5,
			NicknameMaxLen:        32,
		},
		Admission: AdmissionConfig{
			WindowSeconds: 10,
			MaxPerWindow:  20,
			MaxConns:      1024,
		},
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("parse config file %s at %d:%d: %w", path, row, col, err)
		}
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if addr, err := parseAddrEnv("PORT"); err != nil {
		return err
	} else if addr != "" {
		cfg.Server.Addr = addr
	}

	if v, err := parseOptionalIntEnv("COMMAND_TIMEOUT_SECONDS"); err != nil {
		return err
	} else if v != nil {
		cfg.Core.CommandTimeoutSeconds = *v
	}

	if v, err := parseOptionalIntEnv("NICKNAME_MAX_LEN"); err != nil {
		return err
	} else if v != nil {
		cfg.Core.NicknameMaxLen = *v
	}

	if names := strings.TrimSpace(os.Getenv("ADMIN_NAMES")); names != "" {
		cfg.Core.AdminNames = splitNames(names)
	}

	var err error
	if cfg.Core.RetainEmptyRooms, err = parseBoolEnv("RETAIN_EMPTY_ROOMS", cfg.Core.RetainEmptyRooms); err != nil {
		return err
	}
	if cfg.Core.CancelTimerOnOverwrite, err = parseBoolEnv("CANCEL_TIMER_ON_OVERWRITE", cfg.Core.CancelTimerOnOverwrite); err != nil {
		return err
	}

	if v, err := parseOptionalIntEnv("ADMISSION_WINDOW_SECONDS"); err != nil {
		return err
	} else if v != nil {
		cfg.Admission.WindowSeconds = *v
	}
	if v, err := parseOptionalIntEnv("ADMISSION_MAX_PER_WINDOW"); err != nil {
		return err
	} else if v != nil {
		cfg.Admission.MaxPerWindow = *v
	}
	if v, err := parseOptionalIntEnv("MAX_CONNS"); err != nil {
		return err
	} else if v != nil {
		cfg.Admission.MaxConns = *v
	}

	return nil
}

// parseAddrEnv accepts "8080", ":8080" or "127.0.0.1:8080".
func parseAddrEnv(key string) (string, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		return "", nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func splitNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
