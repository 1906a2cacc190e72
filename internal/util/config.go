/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Pbs          PbsConfig         `mapstructure:"pbs" yaml:"pbs"`
	Paths        PathsConfig       `mapstructure:"paths" yaml:"paths"`
	DriveMapping map[string]string `mapstructure:"drive_mapping" yaml:"drive_mapping"`
	Servers      []ServerConfig    `mapstructure:"servers" yaml:"servers"`
	Ssh          SshConfig         `mapstructure:"ssh" yaml:"ssh"`
	Tail         TailConfig        `mapstructure:"tail" yaml:"tail"`
	Log          LogConfig         `mapstructure:"log" yaml:"log"`

	// Path of the file the config was read from.
	FilePath string `mapstructure:"-" yaml:"-"`
}

type PbsConfig struct {
	QdelPath         string `mapstructure:"qdel_path" yaml:"qdel_path"`
	QsubPath         string `mapstructure:"qsub_path" yaml:"qsub_path"`
	SubmitScriptName string `mapstructure:"submit_script_name" yaml:"submit_script_name"`
}

type PathsConfig struct {
	LinuxBasePath    string `mapstructure:"linux_base_path" yaml:"linux_base_path"`
	RemoteScriptName string `mapstructure:"remote_script_name" yaml:"remote_script_name"`
	RemotePython     string `mapstructure:"remote_python" yaml:"remote_python"`
}

type ServerConfig struct {
	Hostname string `mapstructure:"hostname" yaml:"hostname"`
	Name     string `mapstructure:"name" yaml:"name"`
}

type SshConfig struct {
	Transport         string        `mapstructure:"transport" yaml:"transport"`
	Port              int           `mapstructure:"port" yaml:"port"`
	Username          string        `mapstructure:"username" yaml:"username,omitempty"`
	KeyFile           string        `mapstructure:"key_file" yaml:"key_file,omitempty"`
	KnownHosts        string        `mapstructure:"known_hosts" yaml:"known_hosts,omitempty"`
	ConnectionTimeout int           `mapstructure:"connection_timeout" yaml:"connection_timeout"`
	ConnectRetries    int           `mapstructure:"connect_retries" yaml:"connect_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

type TailConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SeedLines       int           `mapstructure:"seed_lines" yaml:"seed_lines"`
	LogRelativePath string        `mapstructure:"log_relative_path" yaml:"log_relative_path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

const (
	TransportSsh   = "ssh"
	TransportLocal = "local"
)

var (
	DefaultConfigName = "config.yaml"
	DefaultConfigDir  = ".pbs_monitor"

	ErrConfigNotFound = errors.New("configuration file not found")
)

// Keys that must be present in every configuration file.
var requiredKeys = []string{
	"pbs.qdel_path",
	"pbs.qsub_path",
	"pbs.submit_script_name",
	"paths.linux_base_path",
	"paths.remote_script_name",
}

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("paths.remote_python", "python3")

	v.SetDefault("ssh.transport", TransportSsh)
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.connection_timeout", 10)
	v.SetDefault("ssh.connect_retries", 1)
	v.SetDefault("ssh.retry_delay", 2*time.Second)

	v.SetDefault("tail.poll_interval", 3*time.Second)
	v.SetDefault("tail.seed_lines", 50)
	v.SetDefault("tail.log_relative_path", "Simulation/messag")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// ConfigSearchPaths lists the locations tried when no config file is given:
// the working directory, ~/.pbs_monitor and the directory of the executable.
func ConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DefaultConfigDir))
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Dir(exe))
	}
	return paths
}

// ParseConfig reads and validates the configuration. An empty path searches
// ConfigSearchPaths for config.yaml.
func ParseConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaultConfig(v)
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigName, filepath.Ext(DefaultConfigName)))
		for _, p := range ConfigSearchPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w (searched: %s)", ErrConfigNotFound, describeSearch(path))
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if problems := validateConfig(v); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration %s:\n  - %s",
			v.ConfigFileUsed(), strings.Join(problems, "\n  - "))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.FilePath = v.ConfigFileUsed()

	if problems := checkConfig(&config); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration %s:\n  - %s",
			config.FilePath, strings.Join(problems, "\n  - "))
	}

	return &config, nil
}

func describeSearch(path string) string {
	if path != "" {
		return path
	}
	var tried []string
	for _, p := range ConfigSearchPaths() {
		tried = append(tried, filepath.Join(p, DefaultConfigName))
	}
	return strings.Join(tried, ", ")
}

// validateConfig reports every missing key at once instead of stopping at
// the first one.
func validateConfig(v *viper.Viper) []string {
	var problems []string

	// InConfig ignores defaults, so "paths" counts as missing even though
	// paths.remote_python has one.
	for _, section := range []string{"pbs", "paths", "drive_mapping", "servers"} {
		if !v.InConfig(section) {
			problems = append(problems, fmt.Sprintf("missing section: '%s'", section))
		}
	}

	for _, key := range requiredKeys {
		section := strings.SplitN(key, ".", 2)[0]
		if !v.InConfig(section) {
			continue
		}
		if !v.InConfig(key) {
			problems = append(problems, fmt.Sprintf("missing key: '%s'", key))
		}
	}

	return problems
}

func checkConfig(config *Config) []string {
	var problems []string

	if len(config.Servers) == 0 {
		problems = append(problems, "'servers' list cannot be empty")
	}
	hosts := make(map[string]bool, len(config.Servers))
	for i, srv := range config.Servers {
		if srv.Hostname == "" {
			problems = append(problems, fmt.Sprintf("server %d: missing 'hostname'", i+1))
		}
		if srv.Name == "" {
			problems = append(problems, fmt.Sprintf("server %d: missing 'name'", i+1))
		}
		hosts[srv.Hostname] = true
	}

	if len(config.DriveMapping) == 0 {
		problems = append(problems, "'drive_mapping' cannot be empty")
	}
	for drive, host := range config.DriveMapping {
		if !hosts[host] {
			problems = append(problems,
				fmt.Sprintf("drive %s: server '%s' is not listed in 'servers'", strings.ToUpper(drive), host))
		}
	}

	switch config.Ssh.Transport {
	case TransportSsh, TransportLocal:
	default:
		problems = append(problems, fmt.Sprintf("ssh.transport: unsupported value '%s'", config.Ssh.Transport))
	}

	if config.Tail.PollInterval <= 0 {
		problems = append(problems, "tail.poll_interval must be positive")
	}
	if config.Tail.SeedLines < 0 {
		problems = append(problems, "tail.seed_lines cannot be negative")
	}

	return problems
}

// ServerByHostname returns the configured server with the given hostname.
func (c *Config) ServerByHostname(hostname string) (ServerConfig, bool) {
	for _, srv := range c.Servers {
		if srv.Hostname == hostname {
			return srv, true
		}
	}
	return ServerConfig{}, false
}

// ServerByName returns the configured server with the given display name.
func (c *Config) ServerByName(name string) (ServerConfig, bool) {
	for _, srv := range c.Servers {
		if srv.Name == name {
			return srv, true
		}
	}
	return ServerConfig{}, false
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Ssh.ConnectionTimeout) * time.Second
}
