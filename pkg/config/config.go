// Package config loads BFS configuration from built-in defaults, a YAML
// file, and BFS_ environment variables, in that order of increasing
// precedence (the environment is consulted only when a config file is
// found), and validates the result before it is used to construct
// the device, cluster, and client layers.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bfsfs/bfs/internal/bytesize"
	"github.com/bfsfs/bfs/pkg/crypto"
)

// Config is the root BFS configuration document.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	DeviceLayer DeviceLayerConfig `mapstructure:"bfsDeviceLayer" yaml:"bfsDeviceLayer"`
	BlockLayer  BlockLayerConfig  `mapstructure:"bfsBlockLayer" yaml:"bfsBlockLayer"`
	ClientLayer ClientLayerConfig `mapstructure:"bfsClientLayer" yaml:"bfsClientLayer"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// SecurityAssociationConfig names the two peers of a security association
// and the shared key used to derive its AEAD cipher.
type SecurityAssociationConfig struct {
	Initiator string `mapstructure:"initiator" yaml:"initiator"`
	Responder string `mapstructure:"responder" yaml:"responder"`
	KeyB64    string `mapstructure:"key-b64" yaml:"key-b64" validate:"omitempty,base64"`
}

// Build decodes the base64 key and constructs the security association
// it describes.
func (sa SecurityAssociationConfig) Build() (*crypto.SecurityAssociation, error) {
	key, err := base64.StdEncoding.DecodeString(sa.KeyB64)
	if err != nil {
		return nil, fmt.Errorf("config: decode sa key: %w", err)
	}
	return crypto.NewSecurityAssociation(sa.Initiator, sa.Responder, key)
}

// DeviceConfig describes one configured block device, local or remote.
type DeviceConfig struct {
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=local remote"`
	// DeviceID identifies this device within the cluster's address space.
	DeviceID uint32 `mapstructure:"did" yaml:"did"`
	// Size is the device's capacity; for a local device it determines the
	// number of blocks the backing file holds.
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size,omitempty"`
	// Path is the backing file for a local device.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
	// IP and Port address a remote device's storage daemon.
	IP   string `mapstructure:"ip" yaml:"ip,omitempty"`
	Port int    `mapstructure:"port" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	SA   SecurityAssociationConfig `mapstructure:"sa" yaml:"sa"`
	// UserID is the user-id the storage daemon for this device accepts
	// (local) or presents (remote) on every device-protocol frame.
	UserID uint64 `mapstructure:"user_id" yaml:"user_id,omitempty"`
}

// DeviceLayerConfig lists the devices the block cluster is built from.
type DeviceLayerConfig struct {
	Devices []DeviceConfig `mapstructure:"devices" yaml:"devices" validate:"dive"`
}

// BlockLayerConfig configures the virtual block address space.
type BlockLayerConfig struct {
	NumBlocks            uint64 `mapstructure:"num_blocks" yaml:"num_blocks"`
	AllocationDiscipline string `mapstructure:"allocation_discipline" yaml:"allocation_discipline" validate:"required,oneof=linear interleave"`
	LogEnabled           bool   `mapstructure:"log_enabled" yaml:"log_enabled"`
	LogVerbose           bool   `mapstructure:"log_verbose" yaml:"log_verbose"`
	CacheCapacity        int    `mapstructure:"cache_capacity" yaml:"cache_capacity"`
	// MetricsEnabled makes bfsdevice create the process Prometheus
	// registry; no cluster collectors are registered on it.
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	// MetricsPort serves /metrics for the bfsdevice process.
	MetricsPort int `mapstructure:"metrics_port" yaml:"metrics_port,omitempty" validate:"omitempty,min=1,max=65535"`
}

// ClientLayerConfig configures the client-side mount and its write-back
// file cache.
type ClientLayerConfig struct {
	DoMkfs     bool                      `mapstructure:"do_mkfs" yaml:"do_mkfs"`
	DirectIO   bool                      `mapstructure:"direct_io" yaml:"direct_io"`
	ServerIP   string                    `mapstructure:"bfs_server_ip" yaml:"bfs_server_ip"`
	ServerPort int                       `mapstructure:"bfs_server_port" yaml:"bfs_server_port" validate:"omitempty,min=1,max=65535"`
	ServerSA   SecurityAssociationConfig `mapstructure:"cl_serv_sa" yaml:"cl_serv_sa"`
	StagingDir string                    `mapstructure:"staging_dir" yaml:"staging_dir"`
	// UserID is the user-id this client presents on the filesystem-boundary
	// RPC channel to the BFS server.
	UserID uint64 `mapstructure:"user_id" yaml:"user_id,omitempty"`
	// MetricsEnabled starts a Prometheus registry and wires ClientMetrics
	// into the file cache and background flusher.
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// Default returns the built-in configuration used when no file is found.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "INFO", Format: "text", Output: "stderr"},
		BlockLayer: BlockLayerConfig{
			AllocationDiscipline: "linear",
			LogEnabled:           true,
			CacheCapacity:        4096,
		},
		ClientLayer: ClientLayerConfig{
			StagingDir: filepath.Join(os.TempDir(), "bfs-client"),
		},
	}
}

// Load reads configuration from configPath (YAML), overlays the BFS_*
// environment variables, applies defaults for anything still unset, and
// validates the result. An empty configPath with no file found at the
// default location yields Default() directly.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if !found {
		cfg := Default()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config: default configuration invalid: %w", err)
		}
		return cfg, nil
	}

	cfg := Default()
	if err := v.Unmarshal(cfg, viper.DecodeHook(byteSizeDecodeHook())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfigPath is the file Load probes for when no --config flag is
// given, and the path `config init` writes to absent an explicit one.
const DefaultConfigPath = "bfs.yaml"

// Save writes cfg to path in YAML form, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

var structValidator = validator.New()

// Validate runs go-playground/validator struct tags against cfg, then a
// handful of cross-field checks the tag language can't express (the
// required fields of a device entry depend on its type).
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}
	for i, d := range cfg.DeviceLayer.Devices {
		switch d.Type {
		case "local":
			if d.Path == "" || d.Size == 0 {
				return fmt.Errorf("device[%d]: local device requires path and size", i)
			}
		case "remote":
			if d.IP == "" || d.Port == 0 {
				return fmt.Errorf("device[%d]: remote device requires ip and port", i)
			}
		}
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.SetConfigName("bfs")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

// byteSizeDecodeHook lets bfsDeviceLayer.devices[*].size accept either a
// human-readable string ("1Gi") or a plain number.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
