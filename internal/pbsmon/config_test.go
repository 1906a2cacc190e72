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
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitConfigProducesValidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	written, err := InitConfig(path, false)
	if err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}
	if written != path {
		t.Fatalf("InitConfig() wrote %q, want %q", written, path)
	}

	config, err := util.ParseConfig(path)
	if err != nil {
		t.Fatalf("ParseConfig() of template error = %v", err)
	}
	if config.Tail.PollInterval != 3*time.Second || config.Tail.SeedLines != 50 {
		t.Fatalf("tail settings = %+v", config.Tail)
	}
	if len(config.Servers) != 2 || config.DriveMapping["x"] != "hpc1.example.com" {
		t.Fatalf("servers = %+v, drives = %v", config.Servers, config.DriveMapping)
	}

	if _, err := InitConfig(path, false); util.ExitCodeOf(err) != util.ErrorCmdArg {
		t.Fatalf("InitConfig() over existing file error = %v", err)
	}
	if _, err := InitConfig(path, true); err != nil {
		t.Fatalf("InitConfig(force) error = %v", err)
	}
}

func TestShowConfig(t *testing.T) {
	t.Parallel()

	config := testConfig()
	config.FilePath = "/etc/pbsmon/config.yaml"

	var out bytes.Buffer
	if err := ShowConfig(&out, config); err != nil {
		t.Fatalf("ShowConfig() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"# Loaded from /etc/pbsmon/config.yaml",
		"qsub_path: /opt/pbs/bin/qsub",
		"drive_mapping:",
		"poll_interval: 10ms",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("ShowConfig() output misses %q:\n%s", want, got)
		}
	}
}
