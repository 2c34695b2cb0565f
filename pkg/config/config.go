package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bottledcode/atlas-db/atlas/options"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Configuration keys
const (
	KeyDataDir          = "data_dir"
	KeyUseBackendEngine = "use_backend_engine"
	KeyPersistToDisk    = "persist_to_disk"
)

// AppDirName is the directory created under the platform's application data location
const AppDirName = "atlas-db"

// ErrInvalidConfig is returned for unknown keys and values of the wrong type
var ErrInvalidConfig = errors.New("invalid configuration")

// StorageConfig is the resolved storage configuration. It is fixed for the
// lifetime of the process; changing it requires a restart.
type StorageConfig struct {
	DataDir          string `mapstructure:"data_dir"`
	UseBackendEngine bool   `mapstructure:"use_backend_engine"`
	PersistToDisk    bool   `mapstructure:"persist_to_disk"`
}

// MemoryOnly reports whether the schema is kept in memory only
func (c StorageConfig) MemoryOnly() bool {
	return !c.PersistToDisk
}

// BackendEnabled reports whether the backend engine should be activated.
// The backend persists everything it holds, so it needs persistence on.
func (c StorageConfig) BackendEnabled() bool {
	return c.PersistToDisk && c.UseBackendEngine
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *StorageConfig {
	return &StorageConfig{
		DataDir:          DefaultDataDir(),
		UseBackendEngine: true,
		PersistToDisk:    true,
	}
}

// DefaultDataDir returns the platform's application data location for
// Atlas-DB, or a directory relative to the working directory when the
// platform has none.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "atlas-data"
	}
	return filepath.Join(dir, AppDirName)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyUseBackendEngine, true)
	v.SetDefault(KeyPersistToDisk, true)
	v.SetDefault(KeyDataDir, "")
	return v
}

// Keys lists every configuration key Resolve accepts
var Keys = []string{KeyDataDir, KeyUseBackendEngine, KeyPersistToDisk}

// Resolve fills in a partial configuration. Keys must be spelled exactly as
// in Keys; anything else makes it fail with ErrInvalidConfig.
func Resolve(partial map[string]any, log *zap.Logger) (*StorageConfig, error) {
	log = options.LoggerOr(log)

	for key := range partial {
		if !slices.Contains(Keys, key) {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, key)
		}
	}

	v := newViper()
	if err := v.MergeConfigMap(partial); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	config := &StorageConfig{}
	if err := v.UnmarshalExact(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if config.DataDir == "" {
		config.DataDir = DefaultDataDir()
	}

	if config.UseBackendEngine && !config.PersistToDisk {
		log.Warn("use_backend_engine is ignored because persist_to_disk is off; the backend engine always persists",
			zap.String("data_dir", config.DataDir))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Load reads the configuration keys from a file (any format viper reads,
// chosen by extension) and ATLAS_ environment variables, then resolves them.
// An empty path uses the environment and defaults only. Overrides, usually
// command line flags, take precedence over both.
func Load(configPath string, overrides map[string]any, log *zap.Logger) (*StorageConfig, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ATLAS")
	for _, binding := range [][2]string{
		{KeyDataDir, "ATLAS_DATA_DIR"},
		{KeyPersistToDisk, "ATLAS_PERSIST_TO_DISK"},
		{KeyUseBackendEngine, "ATLAS_USE_BACKEND_ENGINE"},
	} {
		if err := v.BindEnv(binding[0], binding[1]); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", binding[1], err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	return Resolve(v.AllSettings(), log)
}

// Validate validates the configuration
func (c *StorageConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", ErrInvalidConfig)
	}
	return nil
}
