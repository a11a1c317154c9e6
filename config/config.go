package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "duochat"
	// DataDirEnv overrides the resolved data directory when set.
	DataDirEnv = "DUOCHAT_DATA_DIR"
	// DefaultPort is the TCP port both roles use when nothing else is configured.
	DefaultPort = 1234
	// DefaultPeerAddress is the host a client dials by default.
	DefaultPeerAddress = "localhost"
	// RoleServer listens and accepts one client.
	RoleServer = "server"
	// RoleClient dials the server.
	RoleClient = "client"

	configFileName = "config.json"
	logFileName    = "duochat.log"
)

// AppConfig contains persistent settings for one installation.
type AppConfig struct {
	InstanceID  string `json:"instance_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	PeerAddress string `json:"peer_address"`
	Port        int    `json:"port"`
	DownloadDir string `json:"download_dir"`
	Discovery   bool   `json:"discovery"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If DUOCHAT_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// LogPath returns the log file path for a data directory.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, logFileName)
}

// EnsureDataDir creates the app data directory if needed.
func EnsureDataDir(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", dataDir, err)
	}
	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *AppConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures the data directory and config exist, then returns the
// config, its path and the data directory.
func LoadOrCreate() (*AppConfig, string, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", "", err
	}
	if err := EnsureDataDir(dataDir); err != nil {
		return nil, "", "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", "", err
		}

		cfg = defaultConfig()
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", "", err
		}

		return cfg, cfgPath, dataDir, nil
	}

	if normalizeDefaults(cfg) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", "", err
		}
	}

	return cfg, cfgPath, dataDir, nil
}

// Validate reports settings that would stop a session from starting.
func (c *AppConfig) Validate() error {
	if NormalizeRole(c.Role) == "" {
		return fmt.Errorf("invalid role %q", c.Role)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if NormalizeRole(c.Role) == RoleClient && strings.TrimSpace(c.PeerAddress) == "" && !c.Discovery {
		return errors.New("client needs a peer address or discovery")
	}
	return nil
}

// NormalizeRole maps user input onto a known role, or "" when unknown.
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleServer:
		return RoleServer
	case RoleClient:
		return RoleClient
	default:
		return ""
	}
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		InstanceID:  uuid.NewString(),
		DisplayName: defaultDisplayName(),
		Role:        RoleClient,
		PeerAddress: DefaultPeerAddress,
		Port:        DefaultPort,
		DownloadDir: defaultDownloadDir(),
		Discovery:   false,
	}
}

func normalizeDefaults(cfg *AppConfig) bool {
	updated := false

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
		updated = true
	}

	if cfg.DisplayName == "" {
		cfg.DisplayName = defaultDisplayName()
		updated = true
	}

	role := NormalizeRole(cfg.Role)
	if role == "" {
		role = RoleClient
	}
	if cfg.Role != role {
		cfg.Role = role
		updated = true
	}

	if cfg.PeerAddress == "" {
		cfg.PeerAddress = DefaultPeerAddress
		updated = true
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = DefaultPort
		updated = true
	}

	if cfg.DownloadDir == "" {
		cfg.DownloadDir = defaultDownloadDir()
		updated = true
	}

	return updated
}

func defaultDisplayName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "duochat"
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}
