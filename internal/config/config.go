// Package config loads smoldb's server and client configuration from a
// YAML file, optionally overlaid with a .env file, following the
// thread-safe singleton pattern used throughout the rest of the example
// pack this module is built from.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// StorageKind selects which storage.Storage backend a server binds to.
type StorageKind string

const (
	StorageBitcask StorageKind = "bitcask"
	StorageAlt     StorageKind = "alt"
)

// Config holds the settings shared by the kvd server and kv client
// binaries. Fields are exported with yaml tags so a deployment can ship a
// single config.yml covering both.
type Config struct {
	Addr             string      `yaml:"ADDR"`
	DataDir          string      `yaml:"DATA_DIR"`
	StorageKind      StorageKind `yaml:"STORAGE_KIND"`
	LogSizeThreshold uint64      `yaml:"LOG_SIZE_THRESHOLD"`
	PoolSize         int         `yaml:"POOL_SIZE"`
}

// Default returns the built-in defaults used when no config file is
// present, so the binaries work unconfigured against a local data
// directory.
func Default() *Config {
	return &Config{
		Addr:             "127.0.0.1:4001",
		DataDir:          "./data",
		StorageKind:      StorageBitcask,
		LogSizeThreshold: 1 << 20,
		PoolSize:         1,
	}
}

var (
	appConfig *Config
	once      sync.Once
	initErr   error
)

// Load reads configuration from path, expanding environment variables in
// the file and overlaying a .env file from the working directory if one
// exists. It is safe to call from multiple goroutines; only the first
// call actually reads the file, matching the singleton pattern the rest
// of the config-loading example this is based on uses. If path does not
// exist, Load returns the built-in defaults rather than an error, since a
// smoldb deployment is expected to run unconfigured out of the box.
func Load(path string) (*Config, error) {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("no .env file found or error loading it", "error", err)
		} else {
			slog.Debug(".env file loaded successfully")
		}

		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			appConfig = Default()
			return
		}
		if err != nil {
			initErr = fmt.Errorf("reading config %s: %w", path, err)
			return
		}

		cfg := Default()
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
			initErr = fmt.Errorf("parsing config %s: %w", path, err)
			return
		}
		appConfig = cfg
	})
	return appConfig, initErr
}

// Get returns the singleton configuration. It panics if Load has not been
// called successfully yet.
func Get() *Config {
	if appConfig == nil {
		panic("config not loaded - call Load() first")
	}
	return appConfig
}
