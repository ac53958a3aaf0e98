package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
)

// Config holds onlinstall configuration
type Config struct {
	Profile string

	// Host artifacts copied into a freshly bootstrapped chroot.
	// Absence of any of these on the host is not an error.
	MachineConfPath string
	OnlConfigDir    string
	FwEnvConfigPath string

	LogsPath string

	// PreferDevtmpfs controls whether /dev is mounted as devtmpfs when the
	// host kernel supports it, instead of cloning host device nodes.
	PreferDevtmpfs bool

	// RebootTimeout is the confirmation countdown in seconds.
	RebootTimeout int

	Debug  bool
	Force  bool
	YesAll bool

	// Journal settings
	Journal struct {
		Path string // Default: /var/lib/onlinstall/journal.db
	}
}

var globalConfig *Config

// NewConfig returns a Config populated with the built-in defaults.
func NewConfig() *Config {
	cfg := &Config{
		PreferDevtmpfs: true,
		RebootTimeout:  3,
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills any unset path values
func (cfg *Config) applyDefaults() {
	if cfg.MachineConfPath == "" {
		cfg.MachineConfPath = "/etc/machine.conf"
	}
	if cfg.OnlConfigDir == "" {
		cfg.OnlConfigDir = "/etc/onl"
	}
	if cfg.FwEnvConfigPath == "" {
		cfg.FwEnvConfigPath = "/etc/fw_env.config"
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = "/var/log/onlinstall"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "/var/lib/onlinstall/journal.db"
	}
	if cfg.RebootTimeout <= 0 {
		cfg.RebootTimeout = 3
	}
}

// GetConfig returns the global configuration
func GetConfig() *Config {
	return globalConfig
}

// SetConfig sets the global configuration
func SetConfig(cfg *Config) {
	globalConfig = cfg
}

// LoadConfig loads configuration from file
func LoadConfig(configDir, profile string) (*Config, error) {
	cfg := &Config{
		Profile:        profile,
		PreferDevtmpfs: true,
		RebootTimeout:  3,
	}

	// Determine config file path
	configFile := "/etc/onlinstall/onlinstall.ini"
	if configDir != "" {
		configFile = configDir + "/onlinstall.ini"
	}

	// Try to load config file
	if _, err := os.Stat(configFile); err == nil {
		iniFile, err := ini.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}

		// If no profile specified, read from global section
		if cfg.Profile == "" || cfg.Profile == "default" {
			globalSec := iniFile.Section("Global Configuration")
			if globalSec != nil {
				if key := globalSec.Key("profile_selected"); key != nil && key.String() != "" {
					cfg.Profile = key.String()
				}
			}
		}

		// Load the profile section
		if cfg.Profile != "" {
			if profileSec := iniFile.Section(cfg.Profile); profileSec != nil {
				cfg.loadFromSection(profileSec)
			}
		}

		// Also load from global section for any unset values
		if globalSec := iniFile.Section("Global Configuration"); globalSec != nil {
			cfg.loadFromSection(globalSec)
		}
	}

	cfg.applyDefaults()

	return cfg, nil
}

// loadFromSection loads config values from an INI section
func (cfg *Config) loadFromSection(sec *ini.Section) {
	if sec == nil {
		return
	}

	if key := sec.Key("Path_machine_conf"); key != nil && key.String() != "" {
		cfg.MachineConfPath = key.String()
	}
	if key := sec.Key("Path_onl_config"); key != nil && key.String() != "" {
		cfg.OnlConfigDir = key.String()
	}
	if key := sec.Key("Path_fw_env_config"); key != nil && key.String() != "" {
		cfg.FwEnvConfigPath = key.String()
	}
	if key := sec.Key("Directory_logs"); key != nil && key.String() != "" {
		cfg.LogsPath = key.String()
	}
	if key := sec.Key("Journal_path"); key != nil && key.String() != "" {
		cfg.Journal.Path = key.String()
	}

	if key := sec.Key("Prefer_devtmpfs"); key != nil && key.String() != "" {
		cfg.PreferDevtmpfs = parseBool(key.String())
	}
	if key := sec.Key("Reboot_timeout"); key != nil {
		if n, err := key.Int(); err == nil && n > 0 {
			cfg.RebootTimeout = n
		}
	}
}

func parseBool(s string) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	// Handle yes/no
	return s == "yes" || s == "Yes" || s == "YES" || s == "1" || s == "on" || s == "On" || s == "ON"
}
