package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// OUTLOOK_EMAIL_STORAGE_DIR for storage.dir
const EnvPrefix = "OUTLOOK_EMAIL"

// Backend names
const (
	BackendGraph = "graph"
	BackendIMAP  = "imap"
)

// Config holds the application configuration
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Journal JournalConfig `mapstructure:"journal"`
	Log     LogConfig     `mapstructure:"log"`
	Backend string        `mapstructure:"backend"`
	Graph   GraphConfig   `mapstructure:"graph"`
	Auth    AuthConfig    `mapstructure:"auth"`
	IMAP    IMAPConfig    `mapstructure:"imap"`
	Pull    PullConfig    `mapstructure:"pull"`
	List    ListConfig    `mapstructure:"list"`
	Search  SearchConfig  `mapstructure:"search"`
}

// StorageConfig locates the record cache
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// JournalConfig locates the apply journal database
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GraphConfig holds Microsoft Graph settings
type GraphConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PageSize       int           `mapstructure:"page_size"`
	FolderPageSize int           `mapstructure:"folder_page_size"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// AuthConfig controls how access tokens are obtained and cached.
// AccessToken, when set, is used as is and TokenCommand is ignored.
type AuthConfig struct {
	TokenCommand   string        `mapstructure:"token_command"`
	AccessToken    string        `mapstructure:"access_token"`
	KeyringService string        `mapstructure:"keyring_service"`
	KeyringDir     string        `mapstructure:"keyring_dir"`
	ExpiryBuffer   time.Duration `mapstructure:"expiry_buffer"`
}

// IMAPConfig holds settings for the IMAP backend
type IMAPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PullConfig names the folders used by pull
type PullConfig struct {
	SourceFolder  string `mapstructure:"source_folder"`
	ArchiveFolder string `mapstructure:"archive_folder"`
}

type ListConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

type SearchConfig struct {
	MaxLimit int `mapstructure:"max_limit"`
}

// DefaultDir returns ~/.outlook-email, falling back to the working directory
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".outlook-email"
	}
	return filepath.Join(home, ".outlook-email")
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/outlook-email/config.yaml
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "outlook-email", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	base := DefaultDir()
	v.SetDefault("storage.dir", filepath.Join(base, "emails"))
	v.SetDefault("journal.path", filepath.Join(base, "journal.db"))
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("backend", BackendGraph)
	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.page_size", 50)
	v.SetDefault("graph.folder_page_size", 200)
	v.SetDefault("graph.timeout", 30*time.Second)
	v.SetDefault("auth.token_command", "")
	v.SetDefault("auth.access_token", "")
	v.SetDefault("auth.keyring_service", "outlook-email")
	v.SetDefault("auth.keyring_dir", filepath.Join(base, "keyring"))
	v.SetDefault("auth.expiry_buffer", 5*time.Minute)
	v.SetDefault("imap.host", "")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("pull.source_folder", "inbox")
	v.SetDefault("pull.archive_folder", "Processed")
	v.SetDefault("list.default_limit", 10)
	v.SetDefault("search.max_limit", 50)
}

// LoadConfig reads configuration from defaults, an optional YAML file,
// a .env file in the working directory and OUTLOOK_EMAIL_* variables.
// An empty path falls back to DefaultConfigPath when that file exists.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
			if explicit || !missing {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}

	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	switch c.Backend {
	case BackendGraph:
		if c.Graph.PageSize < 1 || c.Graph.PageSize > 1000 {
			return fmt.Errorf("graph.page_size must be between 1 and 1000")
		}
		if c.Graph.FolderPageSize < 1 || c.Graph.FolderPageSize > 200 {
			return fmt.Errorf("graph.folder_page_size must be between 1 and 200")
		}
		if c.Graph.Timeout <= 0 {
			return fmt.Errorf("graph.timeout must be positive")
		}
	case BackendIMAP:
		if c.IMAP.Host == "" {
			return fmt.Errorf("imap.host is required for the imap backend")
		}
		if c.IMAP.Port < 1 || c.IMAP.Port > 65535 {
			return fmt.Errorf("invalid imap.port")
		}
	default:
		return fmt.Errorf("backend must be %s or %s, got %q", BackendGraph, BackendIMAP, c.Backend)
	}

	if c.Auth.ExpiryBuffer < 0 {
		return fmt.Errorf("auth.expiry_buffer must not be negative")
	}

	if strings.TrimSpace(c.Pull.ArchiveFolder) == "" {
		return fmt.Errorf("pull.archive_folder is required")
	}

	if c.List.DefaultLimit < 1 {
		return fmt.Errorf("list.default_limit must be positive")
	}

	if c.Search.MaxLimit < 1 || c.Search.MaxLimit > 50 {
		return fmt.Errorf("search.max_limit must be between 1 and 50")
	}

	return nil
}
