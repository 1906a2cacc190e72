package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
pbs:
  qdel_path: /opt/pbs/bin/qdel
  qsub_path: /opt/pbs/bin/qsub
  submit_script_name: run.pbs
paths:
  linux_base_path: /mnt/dir
  remote_script_name: que.py
drive_mapping:
  X: hpc1.local
  y: hpc2.local
servers:
  - hostname: hpc1.local
    name: HPC1
  - hostname: hpc2.local
    name: HPC2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseConfigDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validConfig)
	config, err := ParseConfig(path)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if config.FilePath != path {
		t.Fatalf("FilePath = %q, want %q", config.FilePath, path)
	}
	if config.Paths.RemotePython != "python3" {
		t.Fatalf("RemotePython = %q", config.Paths.RemotePython)
	}
	if config.Ssh.Transport != TransportSsh || config.Ssh.Port != 22 || config.ConnectTimeout() != 10*time.Second {
		t.Fatalf("ssh defaults = %+v", config.Ssh)
	}
	if config.Ssh.RetryDelay != 2*time.Second {
		t.Fatalf("RetryDelay = %v", config.Ssh.RetryDelay)
	}
	if config.Tail.PollInterval != 3*time.Second || config.Tail.SeedLines != 50 ||
		config.Tail.LogRelativePath != "Simulation/messag" {
		t.Fatalf("tail defaults = %+v", config.Tail)
	}
	if config.Log.Level != "info" {
		t.Fatalf("log level = %q", config.Log.Level)
	}
	if len(config.DriveMapping) != 2 {
		t.Fatalf("DriveMapping = %v", config.DriveMapping)
	}

	srv, ok := config.ServerByName("HPC2")
	if !ok || srv.Hostname != "hpc2.local" {
		t.Fatalf("ServerByName(HPC2) = %+v, %v", srv, ok)
	}
	if _, ok := config.ServerByHostname("hpc3.local"); ok {
		t.Fatal("ServerByHostname(hpc3.local) found a server")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validConfig+`
ssh:
  transport: local
  retry_delay: 500ms
tail:
  poll_interval: 1s
  seed_lines: 0
`)
	config, err := ParseConfig(path)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if config.Ssh.Transport != TransportLocal || config.Ssh.RetryDelay != 500*time.Millisecond {
		t.Fatalf("ssh = %+v", config.Ssh)
	}
	if config.Tail.PollInterval != time.Second || config.Tail.SeedLines != 0 {
		t.Fatalf("tail = %+v", config.Tail)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "missing sections",
			content: "pbs:\n  qdel_path: /bin/qdel\n",
			want: []string{
				"missing section: 'paths'",
				"missing section: 'drive_mapping'",
				"missing section: 'servers'",
				"missing key: 'pbs.qsub_path'",
				"missing key: 'pbs.submit_script_name'",
			},
		},
		{
			name:    "drive mapped to unknown server",
			content: strings.Replace(validConfig, "y: hpc2.local", "y: hpc9.local", 1),
			want:    []string{"drive Y: server 'hpc9.local' is not listed in 'servers'"},
		},
		{
			name: "empty servers",
			content: strings.Replace(validConfig, validConfig[strings.Index(validConfig, "servers:"):],
				"servers: []\n", 1),
			want: []string{"'servers' list cannot be empty"},
		},
		{
			name:    "bad transport",
			content: validConfig + "ssh:\n  transport: telnet\n",
			want:    []string{"ssh.transport: unsupported value 'telnet'"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("ParseConfig() succeeded")
			}
			for _, want := range tt.want {
				if !strings.Contains(err.Error(), want) {
					t.Fatalf("error misses %q:\n%v", want, err)
				}
			}
		})
	}
}

func TestParseConfigNotFound(t *testing.T) {
	t.Parallel()

	_, err := ParseConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("ParseConfig() error = %v, want ErrConfigNotFound", err)
	}
}

func TestExitCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want CmdErrorCode
	}{
		{err: nil, want: ErrorSuccess},
		{err: NewCmdErr(ErrorNetwork, "down"), want: ErrorNetwork},
		{err: fmt.Errorf("wrapped: %w", WrapCmdErr(ErrorConfig, "bad %s", "key")), want: ErrorConfig},
		{err: errors.New("plain"), want: ErrorGeneric},
	}
	for _, tt := range tests {
		if got := ExitCodeOf(tt.err); got != tt.want {
			t.Errorf("ExitCodeOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}

	if msg := WrapCmdErr(ErrorConfig, "bad %s", "key").Error(); msg != "bad key" {
		t.Errorf("WrapCmdErr message = %q", msg)
	}
}
