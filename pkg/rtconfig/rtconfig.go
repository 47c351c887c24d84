// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// rtconfig loads host settings.  sources, later ones win:
// defaults, <datadir>/settings.json, <datadir>/.env, RTPATCH_* environment variables.
package rtconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/mod/semver"
)

const (
	EnvPrefix        = "RTPATCH_"
	SettingsFileName = "settings.json"
	DotEnvFileName   = ".env"
	DefaultDataDir   = ".rtpatch"

	DefaultListenAddr      = "127.0.0.1:7471"
	DefaultDBName          = "batchlog.db"
	DefaultMaxMessageBytes = 8 * 1024 * 1024
	ProtocolVersion        = "v1.0.0"
)

type Config struct {
	ListenAddr      string `json:"listenaddr"`
	DataDir         string `json:"datadir"`
	DBName          string `json:"dbname"`
	DevMode         bool   `json:"devmode"`
	MaxMessageBytes int64  `json:"maxmessagebytes"`
	ProtocolVersion string `json:"protocolversion"`
}

var devMode atomic.Bool

func SetDevMode(dev bool) {
	devMode.Store(dev)
}

func IsDevMode() bool {
	return devMode.Load()
}

// DevPrintf logs using log.Printf only if running in dev mode
func DevPrintf(format string, v ...any) {
	if IsDevMode() {
		log.Printf(format, v...)
	}
}

func GetDefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return DefaultDataDir
	}
	return filepath.Join(homeDir, DefaultDataDir)
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      DefaultListenAddr,
		DataDir:         GetDefaultDataDir(),
		DBName:          DefaultDBName,
		MaxMessageBytes: DefaultMaxMessageBytes,
		ProtocolVersion: ProtocolVersion,
	}
}

func (c *Config) DBPath() string {
	if c.DBName == "" {
		return ""
	}
	return filepath.Join(c.DataDir, c.DBName)
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listenaddr cannot be empty")
	}
	if c.DataDir == "" {
		return errors.New("datadir cannot be empty")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("maxmessagebytes must be positive, got %d", c.MaxMessageBytes)
	}
	if !semver.IsValid(c.ProtocolVersion) {
		return fmt.Errorf("invalid protocolversion %q (want vMAJOR.MINOR.PATCH)", c.ProtocolVersion)
	}
	return nil
}

// decodes a generic settings map using the json tags.  values from env files
// are strings, so the decode is weakly typed.
func applySettings(cfg *Config, settings map[string]any) error {
	dconfig := &mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(dconfig)
	if err != nil {
		return err
	}
	return decoder.Decode(settings)
}

func readSettingsFile(fileName string) (map[string]any, error) {
	barr, err := os.ReadFile(fileName)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rtn map[string]any
	err = json.Unmarshal(barr, &rtn)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", fileName, err)
	}
	return rtn, nil
}

func envSettings(envMap map[string]string) map[string]any {
	rtn := make(map[string]any)
	for key, val := range envMap {
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		rtn[strings.ToLower(strings.TrimPrefix(key, EnvPrefix))] = val
	}
	return rtn
}

func osEnvMap() map[string]string {
	rtn := make(map[string]string)
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if ok {
			rtn[key] = val
		}
	}
	return rtn
}

// LoadConfig layers all sources on top of the defaults.  dataDir overrides the
// default data directory (and RTPATCH_DATADIR) when non-empty.
func LoadConfig(dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	osEnv := envSettings(osEnvMap())
	if dataDir != "" {
		cfg.DataDir = dataDir
	} else if envDir, ok := osEnv["datadir"].(string); ok && envDir != "" {
		cfg.DataDir = envDir
	}
	settingsFile := filepath.Join(cfg.DataDir, SettingsFileName)
	settings, err := readSettingsFile(settingsFile)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		err = applySettings(cfg, settings)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", settingsFile, err)
		}
	}
	dotEnvFile := filepath.Join(cfg.DataDir, DotEnvFileName)
	dotEnv, err := godotenv.Read(dotEnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", dotEnvFile, err)
	}
	if len(dotEnv) > 0 {
		err = applySettings(cfg, envSettings(dotEnv))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dotEnvFile, err)
		}
	}
	err = applySettings(cfg, osEnv)
	if err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func EnsureDataDir(cfg *Config) error {
	return os.MkdirAll(cfg.DataDir, 0700)
}
