package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kapeview/kapeview/internal/backup"
	"github.com/kapeview/kapeview/internal/duckdb"
	"github.com/kapeview/kapeview/internal/evidence"
)

const (
	defaultListenAddr     = "127.0.0.1:8000"
	defaultQueryTimeout   = duckdb.DefaultQueryTimeout
	defaultBackupKeep     = 14
	defaultBackupInterval = 0 // disabled
)

// serverConfig is the backend runtime configuration.
type serverConfig struct {
	ListenAddr   string                `mapstructure:"listen-addr"`
	MediaRoot    string                `mapstructure:"media-root"`
	DBPath       string                `mapstructure:"db-path"`
	QueryTimeout time.Duration         `mapstructure:"query-timeout"`
	Debug        bool                  `mapstructure:"debug"`
	Parser       evidence.ParserConfig `mapstructure:"parser"`
	Backup       backup.Config         `mapstructure:"backup"`
	ConfigPath   string                `mapstructure:"-"`
}

func loadConfig(configPath string) (serverConfig, error) {
	var cfg serverConfig

	// A missing .env is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return cfg, fmt.Errorf("loading .env: %w", err)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".local", "share", "kapeview")

	v := viper.New()
	v.SetEnvPrefix("KAPEVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("listen-addr", defaultListenAddr)
	v.SetDefault("media-root", filepath.Join(dataDir, "media"))
	v.SetDefault("db-path", filepath.Join(dataDir, "kapeview.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("debug", false)
	v.SetDefault("parser.image", evidence.DefaultParserImage)
	v.SetDefault("parser.platform", "")
	v.SetDefault("parser.volume", evidence.DefaultVolume)
	v.SetDefault("parser.mountpoint", evidence.DefaultMountPoint)
	v.SetDefault("backup.interval", time.Duration(defaultBackupInterval))
	v.SetDefault("backup.dir", filepath.Join(dataDir, "snapshots"))
	v.SetDefault("backup.keep", defaultBackupKeep)
	v.SetDefault("backup.s3-url", "")
	v.SetDefault("backup.s3-endpoint", "")
	v.SetDefault("backup.s3-region", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "kapeview", "config.yml"))
	}
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	cfg.MediaRoot = expandHome(cfg.MediaRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.Backup.Dir = expandHome(cfg.Backup.Dir, home)

	if strings.TrimSpace(cfg.MediaRoot) == "" {
		return cfg, errors.New("media-root is required")
	}
	if cfg.QueryTimeout < 0 {
		return cfg, fmt.Errorf("invalid query-timeout: %s", cfg.QueryTimeout)
	}
	if cfg.Backup.Interval < 0 {
		return cfg, fmt.Errorf("invalid backup.interval: %s", cfg.Backup.Interval)
	}
	return cfg, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
