package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kapeview/kapeview/internal/model"
)

const defaultStageTimeout = 30 * time.Minute

// cliConfig holds only TUI-relevant configuration.
type cliConfig struct {
	ServerURL      string        `mapstructure:"server-url"`
	EvidenceID     string        `mapstructure:"evidence-id"`
	PageSize       int           `mapstructure:"page-size"`
	ExportDir      string        `mapstructure:"export-dir"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	StageTimeout   time.Duration `mapstructure:"stage-timeout"`
	LogPath        string        `mapstructure:"log-path"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("KAPEVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("server-url", model.DefaultServerURL)
	v.SetDefault("evidence-id", "")
	v.SetDefault("page-size", model.DefaultPageSize)
	v.SetDefault("export-dir", ".")
	v.SetDefault("request-timeout", model.DefaultRequestTimeout)
	v.SetDefault("stage-timeout", defaultStageTimeout)
	v.SetDefault("log-path", filepath.Join(home, ".local", "state", "kapeview", "kapeview-tui.log"))

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

	cfg.ExportDir = expandHome(cfg.ExportDir, home)
	cfg.LogPath = expandHome(cfg.LogPath, home)

	if strings.TrimSpace(cfg.ServerURL) == "" {
		return cfg, errors.New("server-url is required")
	}
	if cfg.PageSize < 1 || cfg.PageSize > model.MaxPageSize {
		return cfg, fmt.Errorf("invalid page-size %d: must be between 1 and %d", cfg.PageSize, model.MaxPageSize)
	}
	if cfg.RequestTimeout < 0 || cfg.StageTimeout < 0 {
		return cfg, errors.New("timeouts must not be negative")
	}
	return cfg, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
