package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is read by the relay binary.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	WSPath     string `yaml:"ws_path"`

	RedisURL     string `yaml:"redis_url"`
	DatabaseURL  string `yaml:"database_url"`
	SaveTTLHours int    `yaml:"save_ttl_hours"`

	WriteTimeoutMs int   `yaml:"write_timeout_ms"`
	ReadLimit      int64 `yaml:"read_limit"`

	MessageDir string `yaml:"message_dir"`

	// Browser origins allowed to open the websocket, as host patterns.
	// Clients that send no Origin header are always accepted.
	OriginPatterns []string `yaml:"origin_patterns"`
	AllowAnyOrigin bool     `yaml:"allow_any_origin"`

	// derived
	SaveTTL      time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
}

// ClientConfig is read by the console client.
type ClientConfig struct {
	ServerURL      string
	PlayerName     string
	PendingTimeout time.Duration
	StockfishPath  string
	MessageDir     string
}

// Load builds the server config from defaults, an optional YAML file named
// by NETCHESS_CONFIG, then environment variables.
func Load() (*ServerConfig, error) {
	cfg := &ServerConfig{
		ListenAddr:     ":8080",
		WSPath:         "/ws",
		SaveTTLHours:   720,
		WriteTimeoutMs: 5000,
		ReadLimit:      1 << 20,
	}

	if path := strings.TrimSpace(os.Getenv("NETCHESS_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := env("NETCHESS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := env("NETCHESS_WS_PATH"); v != "" {
		cfg.WSPath = v
	}
	if v := env("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := env("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := env("NETCHESS_MSG_DIR"); v != "" {
		cfg.MessageDir = v
	}
	if v := env("NETCHESS_ORIGIN_PATTERNS"); v != "" {
		cfg.OriginPatterns = splitList(v)
	}
	if v := env("NETCHESS_ALLOW_ANY_ORIGIN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("NETCHESS_ALLOW_ANY_ORIGIN: %w", err)
		}
		cfg.AllowAnyOrigin = b
	}
	if n, ok := positiveInt("NETCHESS_SAVE_TTL_HOURS"); ok {
		cfg.SaveTTLHours = n
	}
	if n, ok := positiveInt("NETCHESS_WRITE_TIMEOUT_MS"); ok {
		cfg.WriteTimeoutMs = n
	}
	if n, ok := positiveInt("NETCHESS_READ_LIMIT"); ok {
		cfg.ReadLimit = int64(n)
	}

	if !strings.HasPrefix(cfg.WSPath, "/") {
		return nil, errors.New("NETCHESS_WS_PATH must start with /")
	}
	if cfg.SaveTTLHours <= 0 || cfg.WriteTimeoutMs <= 0 || cfg.ReadLimit <= 0 {
		return nil, errors.New("ttl, write timeout and read limit must be positive")
	}
	cfg.SaveTTL = time.Duration(cfg.SaveTTLHours) * time.Hour
	cfg.WriteTimeout = time.Duration(cfg.WriteTimeoutMs) * time.Millisecond
	return cfg, nil
}

// LoadClient reads the console client's settings.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerURL:      "ws://localhost:8080/ws",
		PendingTimeout: 5 * time.Second,
	}
	if v := env("NETCHESS_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	cfg.PlayerName = env("NETCHESS_PLAYER_NAME")
	cfg.StockfishPath = env("STOCKFISH_PATH")
	cfg.MessageDir = env("NETCHESS_MSG_DIR")
	if n, ok := positiveInt("NETCHESS_MOVE_PENDING_TIMEOUT_MS"); ok {
		cfg.PendingTimeout = time.Duration(n) * time.Millisecond
	}
	if !strings.HasPrefix(cfg.ServerURL, "ws://") && !strings.HasPrefix(cfg.ServerURL, "wss://") {
		return nil, errors.New("NETCHESS_SERVER_URL must be a ws:// or wss:// url")
	}
	return cfg, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func positiveInt(k string) (int, bool) {
	v := env(k)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
