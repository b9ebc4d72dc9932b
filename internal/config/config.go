package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/warden/internal/logger"
	"github.com/loykin/warden/internal/process"
)

// FileConfig represents the top-level TOML structure:
//
//	[manager]        the server fleet and supervisor-wide knobs
//	[log]            defaults for child process log rotation
//	[slog]           supervisor's own structured logging
//	[store]          optional persistence DSN
//	[history]        optional ClickHouse history sink
//	[server]         optional inspector HTTP API
//	[[workers]]      durable worker groups
type FileConfig struct {
	Env      []string         `toml:"env" mapstructure:"env"`
	EnvFiles []string         `toml:"env_files" mapstructure:"env_files"`
	Manager  ManagerConfig    `toml:"manager" mapstructure:"manager"`
	Log      *LogConfig       `toml:"log" mapstructure:"log"`
	Slog     logger.SlogConfig `toml:"slog" mapstructure:"slog"`
	Store    StoreConfig      `toml:"store" mapstructure:"store"`
	History  HistoryConfig    `toml:"history" mapstructure:"history"`
	Server   ServerConfig     `toml:"server" mapstructure:"server"`
	Workers  []WorkerConfig   `toml:"workers" mapstructure:"workers"`
}

type ManagerConfig struct {
	Workers    int               `toml:"workers" mapstructure:"workers"`
	Tag        string            `toml:"tag" mapstructure:"tag"`
	RequireAck bool              `toml:"require_ack" mapstructure:"require_ack"`
	Command    string            `toml:"command" mapstructure:"command"`
	WorkDir    string            `toml:"workdir" mapstructure:"workdir"`
	Env        []string          `toml:"env" mapstructure:"env"`
	Settings   map[string]string `toml:"settings" mapstructure:"settings"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	ClickHouse ClickHouseConfig `toml:"clickhouse" mapstructure:"clickhouse"`
}

type ClickHouseConfig struct {
	Addr     string `toml:"addr" mapstructure:"addr"`
	Database string `toml:"database" mapstructure:"database"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	Table    string `toml:"table" mapstructure:"table"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type WorkerConfig struct {
	Ident       string            `toml:"ident" mapstructure:"ident"`
	Command     string            `toml:"command" mapstructure:"command"`
	WorkDir     string            `toml:"workdir" mapstructure:"workdir"`
	Env         []string          `toml:"env" mapstructure:"env"`
	Settings    map[string]string `toml:"settings" mapstructure:"settings"`
	Workers     int               `toml:"workers" mapstructure:"workers"`
	Restartable bool              `toml:"restartable" mapstructure:"restartable"`
	Untracked   bool              `toml:"untracked" mapstructure:"untracked"`
	NoAutoStart bool              `toml:"no_auto_start" mapstructure:"no_auto_start"`
	Transient   bool              `toml:"transient" mapstructure:"transient"`
	Log         *LogConfig        `toml:"log" mapstructure:"log"`
}

// Load parses the TOML config at path and validates the pieces warden
// needs up front. WARDEN_-prefixed environment variables override file
// values (e.g. WARDEN_MANAGER_WORKERS).
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if fc.Manager.Workers == 0 {
		fc.Manager.Workers = 1
	}
	if fc.Manager.Workers > 0 && fc.Manager.Command == "" {
		return nil, fmt.Errorf("manager.command is required")
	}
	for _, wc := range fc.Workers {
		if wc.Ident == "" {
			return nil, fmt.Errorf("workers entry requires ident")
		}
		if wc.Command == "" {
			return nil, fmt.Errorf("worker %s requires command", wc.Ident)
		}
		if wc.Transient && !wc.Restartable {
			return nil, fmt.Errorf("worker %s: transient requires restartable", wc.Ident)
		}
	}
	return &fc, nil
}

// ServeSpec builds the process spec for the transient server fleet.
func (fc *FileConfig) ServeSpec() process.Spec {
	return process.Spec{
		Command:  fc.Manager.Command,
		WorkDir:  fc.Manager.WorkDir,
		Env:      fc.Manager.Env,
		Settings: fc.Manager.Settings,
		Log:      fc.logFor(nil),
	}
}

// WorkerSpec builds the process spec for one durable [[workers]] entry.
func (fc *FileConfig) WorkerSpec(wc WorkerConfig) process.Spec {
	return process.Spec{
		Command:  wc.Command,
		WorkDir:  wc.WorkDir,
		Env:      wc.Env,
		Settings: wc.Settings,
		Log:      fc.logFor(wc.Log),
	}
}

// logFor layers a per-worker log config over the top-level defaults.
func (fc *FileConfig) logFor(override *LogConfig) logger.Config {
	var cfg logger.Config
	apply := func(lc *LogConfig) {
		if lc == nil {
			return
		}
		if lc.Dir != "" {
			cfg.Dir = lc.Dir
		}
		if lc.Stdout != "" {
			cfg.StdoutPath = lc.Stdout
		}
		if lc.Stderr != "" {
			cfg.StderrPath = lc.Stderr
		}
		if lc.MaxSizeMB != 0 {
			cfg.MaxSizeMB = lc.MaxSizeMB
		}
		if lc.MaxBackups != 0 {
			cfg.MaxBackups = lc.MaxBackups
		}
		if lc.MaxAgeDays != 0 {
			cfg.MaxAgeDays = lc.MaxAgeDays
		}
		if lc.Compress {
			cfg.Compress = true
		}
	}
	apply(fc.Log)
	apply(override)
	return cfg
}

// GlobalEnv merges env_files contents with the top-level env list; the
// explicit list wins. Entries are "KEY=VALUE".
func (fc *FileConfig) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export,
// no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, nil
}
