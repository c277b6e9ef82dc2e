package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: VMTOPO_STATE_DIR, ...
const EnvPrefix = "VMTOPO"

// Config holds all vmtopo configuration.
type Config struct {
	// StateDir holds the deployment record and runtime handles.
	StateDir string `mapstructure:"state_dir"`

	// TopologyFile is the declaration read by launch.
	TopologyFile string `mapstructure:"topology_file"`

	// BackendPath is the hypervisor backend binary.
	BackendPath string `mapstructure:"backend_path"`

	// Bootrom is the firmware every node boots.
	Bootrom string `mapstructure:"bootrom"`

	// DestroyCommand drops a backend's kernel VM after it is killed.
	DestroyCommand string `mapstructure:"destroy_command"`

	// ZFSCommand, DatasetRoot and SnapshotTag locate node volumes and
	// base images.
	ZFSCommand  string `mapstructure:"zfs_command"`
	DatasetRoot string `mapstructure:"dataset_root"`
	SnapshotTag string `mapstructure:"snapshot_tag"`

	// DladmCommand creates the links between nodes.
	DladmCommand string `mapstructure:"dladm_command"`

	// ReadyAttempts and ReadyInterval bound the wait for a started
	// backend's control port.
	ReadyAttempts int           `mapstructure:"ready_attempts"`
	ReadyInterval time.Duration `mapstructure:"ready_interval"`

	// LogLevel overrides the verbosity flags when set.
	LogLevel string `mapstructure:"log_level"`

	// QuitByte ends a serial session.
	QuitByte int `mapstructure:"quit_byte"`

	file string
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		StateDir:       ".vmtopo",
		TopologyFile:   "topology.yaml",
		BackendPath:    "propolis-server",
		Bootrom:        "/var/ga/OVMF_CODE.fd",
		DestroyCommand: "bhyvectl",
		ZFSCommand:     "zfs",
		DatasetRoot:    "rpool/vmtopo",
		SnapshotTag:    "base",
		DladmCommand:   "dladm",
		ReadyAttempts:  30,
		ReadyInterval:  time.Second,
		LogLevel:       "",
		QuitByte:       0x11,
	}
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("topology_file", defaults.TopologyFile)
	v.SetDefault("backend_path", defaults.BackendPath)
	v.SetDefault("bootrom", defaults.Bootrom)
	v.SetDefault("destroy_command", defaults.DestroyCommand)
	v.SetDefault("zfs_command", defaults.ZFSCommand)
	v.SetDefault("dataset_root", defaults.DatasetRoot)
	v.SetDefault("snapshot_tag", defaults.SnapshotTag)
	v.SetDefault("dladm_command", defaults.DladmCommand)
	v.SetDefault("ready_attempts", defaults.ReadyAttempts)
	v.SetDefault("ready_interval", defaults.ReadyInterval)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("quit_byte", defaults.QuitByte)
}

// Load reads configuration from file, environment, and defaults. An empty
// path searches the working directory and the user config directory for
// config.yaml, and a missing file is fine. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if paths, err := GetPaths(); err == nil {
			v.AddConfigPath(paths.ConfigDir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()
	return cfg, nil
}

// File returns the path of the config file that was read, if any.
func (c *Config) File() string {
	return c.file
}
