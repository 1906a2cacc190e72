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

package pbsmon

import (
	"PBSFrontEnd/internal/util"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// templateConfig is written by "config init". It passes validation as is so
// that only the site specific values need editing.
func templateConfig() *util.Config {
	return &util.Config{
		Pbs: util.PbsConfig{
			QdelPath:         "/opt/pbs/bin/qdel",
			QsubPath:         "/opt/pbs/bin/qsub",
			SubmitScriptName: "run.pbs",
		},
		Paths: util.PathsConfig{
			LinuxBasePath:    "/mnt/dir",
			RemoteScriptName: "que.py",
			RemotePython:     "python3",
		},
		DriveMapping: map[string]string{
			"X": "hpc1.example.com",
			"Y": "hpc2.example.com",
		},
		Servers: []util.ServerConfig{
			{Hostname: "hpc1.example.com", Name: "HPC1"},
			{Hostname: "hpc2.example.com", Name: "HPC2"},
		},
		Ssh: util.SshConfig{
			Transport:         util.TransportSsh,
			Port:              22,
			ConnectionTimeout: 10,
			ConnectRetries:    1,
			RetryDelay:        2 * time.Second,
		},
		Tail: util.TailConfig{
			PollInterval:    3 * time.Second,
			SeedLines:       50,
			LogRelativePath: "Simulation/messag",
		},
		Log: util.LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

const templateHeader = `# pbsmon configuration.
# drive_mapping maps a mapped network drive letter to the hostname of the
# server exporting it. Every hostname used there must be listed in servers.
`

func ShowConfig(w io.Writer, config *util.Config) error {
	out, err := yaml.Marshal(config)
	if err != nil {
		return util.WrapCmdErr(util.ErrorGeneric, "Failed to render configuration: %v", err)
	}
	fmt.Fprintf(w, "# Loaded from %s\n%s", config.FilePath, out)
	return nil
}

// InitConfig writes the template to path, or to ~/.pbs_monitor/config.yaml
// when path is empty, and returns where it was written.
func InitConfig(path string, force bool) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", util.WrapCmdErr(util.ErrorGeneric, "Cannot determine the home directory: %v", err)
		}
		path = filepath.Join(home, util.DefaultConfigDir, util.DefaultConfigName)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return "", util.WrapCmdErr(util.ErrorCmdArg, "%s already exists, use --force to overwrite it.", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", util.WrapCmdErr(util.ErrorGeneric, "Cannot access %s: %v", path, err)
	}

	out, err := yaml.Marshal(templateConfig())
	if err != nil {
		return "", util.WrapCmdErr(util.ErrorGeneric, "Failed to render configuration: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", util.WrapCmdErr(util.ErrorGeneric, "Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, append([]byte(templateHeader), out...), 0o644); err != nil {
		return "", util.WrapCmdErr(util.ErrorGeneric, "Failed to write %s: %v", path, err)
	}
	return path, nil
}
