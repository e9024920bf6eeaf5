package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGlamourStyle = "dark"
	DefaultServerURL    = "http://127.0.0.1:8011"
)

// Config is assembled from three layers, lowest precedence first: the YAML
// config file, environment variables, then explicit flag values passed as
// overrides.
type Config struct {
	ServerURL string `yaml:"server"`
	UserID    string `yaml:"user"`
	DBPath    string `yaml:"db_path"`
	LogFile   string `yaml:"log_file"`
	ExportDir string `yaml:"export_dir"`
}

func Load(configPath string, overrides Config) (Config, error) {
	return load(configPath, overrides, true)
}

// LoadOffline skips the user id requirement for subcommands that only read
// the local archive.
func LoadOffline(configPath string, overrides Config) (Config, error) {
	return load(configPath, overrides, false)
}

func load(configPath string, overrides Config, requireUser bool) (Config, error) {
	cfg := Config{ServerURL: DefaultServerURL}

	path, explicit := configFilePath(configPath)
	if err := applyFile(&cfg, path, explicit); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	applyOverrides(&cfg, overrides)

	if requireUser && cfg.UserID == "" {
		return cfg, fmt.Errorf("no user id: set --user, CODEX_CHAT_USER, or `user:` in %s", path)
	}
	if _, err := url.Parse(cfg.ServerURL); err != nil {
		return cfg, fmt.Errorf("invalid server URL %q: %w", cfg.ServerURL, err)
	}

	var err error
	if cfg.DBPath == "" {
		cfg.DBPath, err = defaultDataPath("archive.sqlite")
		if err != nil {
			return cfg, err
		}
	}
	if cfg.LogFile == "" {
		cfg.LogFile, err = defaultDataPath("codex-chat.log")
		if err != nil {
			return cfg, err
		}
	}
	for _, p := range []string{cfg.DBPath, cfg.LogFile} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return cfg, fmt.Errorf("create data dir: %w", err)
		}
	}
	return cfg, nil
}

// ChatEndpoint derives the websocket address from the HTTP base URL.
func (c Config) ChatEndpoint() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/chat"
	return u.String(), nil
}

func configFilePath(explicit string) (string, bool) {
	if explicit != "" {
		return filepath.Clean(explicit), true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".config", "codex-chat", "config.yaml"), false
}

func applyFile(cfg *Config, path string, explicit bool) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	applyOverrides(cfg, fileCfg)
	return nil
}

func applyEnv(cfg *Config) {
	applyOverrides(cfg, Config{
		ServerURL: os.Getenv("CODEX_CHAT_SERVER"),
		UserID:    os.Getenv("CODEX_CHAT_USER"),
		DBPath:    os.Getenv("CODEX_CHAT_DB"),
		LogFile:   os.Getenv("CODEX_CHAT_LOG"),
	})
}

func applyOverrides(cfg *Config, over Config) {
	if over.ServerURL != "" {
		cfg.ServerURL = over.ServerURL
	}
	if over.UserID != "" {
		cfg.UserID = over.UserID
	}
	if over.DBPath != "" {
		cfg.DBPath = over.DBPath
	}
	if over.LogFile != "" {
		cfg.LogFile = over.LogFile
	}
	if over.ExportDir != "" {
		cfg.ExportDir = over.ExportDir
	}
}

func defaultDataPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "codex-chat", name), nil
}
