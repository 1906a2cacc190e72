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

// Package pbs talks to PBS PRO on the configured servers: it lists jobs
// through the remote helper script and wraps qsub and qdel.
package pbs

import (
	"PBSFrontEnd/internal/remote"
	"PBSFrontEnd/internal/util"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrAmbiguousJob  = errors.New("job id matches more than one job")
	ErrUnknownServer = errors.New("unknown server")
	ErrUnsafePath    = errors.New("refusing to remove path")
)

// ServerResult is the outcome of querying one server.
type ServerResult struct {
	Server util.ServerConfig
	Jobs   []Job
	Err    error
}

// Manager holds the job snapshot of the last FetchAll. It is not safe for
// concurrent use.
type Manager struct {
	config *util.Config
	exec   remote.Executor
	user   string

	jobs    []Job
	results []ServerResult
}

func NewManager(config *util.Config, exec remote.Executor, user string) *Manager {
	return &Manager{config: config, exec: exec, user: user}
}

// UserRoot is the remote directory all mapped drives point into.
func (m *Manager) UserRoot() string {
	base := strings.TrimRight(m.config.Paths.LinuxBasePath, "/")
	return base + "/" + m.user
}

func (m *Manager) ScriptPath() string {
	return m.UserRoot() + "/" + m.config.Paths.RemoteScriptName
}

func (m *Manager) ListCommand() string {
	return remote.Join(m.config.Paths.RemotePython, m.ScriptPath(), "--json")
}

// QueryServer lists the jobs of a single server.
func (m *Manager) QueryServer(ctx context.Context, srv util.ServerConfig) ([]Job, error) {
	out, err := m.exec.Run(ctx, srv.Hostname, m.ListCommand())
	if err != nil {
		return nil, err
	}
	return ParseJobs(out.Stdout, srv.Name)
}

// FetchAll queries every server in configuration order and replaces the
// snapshot. A failing server is reported in its result and does not affect
// jobs from the others.
func (m *Manager) FetchAll(ctx context.Context) []ServerResult {
	results := make([]ServerResult, 0, len(m.config.Servers))
	jobs := []Job{}

	for _, srv := range m.config.Servers {
		if ctx.Err() != nil {
			results = append(results, ServerResult{Server: srv, Err: ctx.Err()})
			continue
		}

		found, err := m.QueryServer(ctx, srv)
		if err != nil {
			log.Debugf("Query %s (%s) failed: %v", srv.Name, srv.Hostname, err)
			results = append(results, ServerResult{Server: srv, Err: err})
			continue
		}
		log.Tracef("Query %s returned %d jobs", srv.Name, len(found))
		results = append(results, ServerResult{Server: srv, Jobs: found})
		jobs = append(jobs, found...)
	}

	m.jobs = jobs
	m.results = results
	return results
}

// Jobs returns a copy of the current snapshot.
func (m *Manager) Jobs() []Job {
	jobs := make([]Job, len(m.jobs))
	copy(jobs, m.jobs)
	return jobs
}

func (m *Manager) Results() []ServerResult {
	return m.results
}

func (m *Manager) FindJob(id string) (Job, error) {
	return FindJob(m.jobs, id)
}

// FindJob looks up id by exact match, then as the numeric part of
// "<id>.<server>", then as a substring. A stage that matches several jobs
// is an error.
func FindJob(jobs []Job, id string) (Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Job{}, fmt.Errorf("%w: empty job id", ErrJobNotFound)
	}

	stages := []func(string) bool{
		func(jobID string) bool { return jobID == id },
		func(jobID string) bool { return strings.HasPrefix(jobID, id+".") },
		func(jobID string) bool { return strings.Contains(jobID, id) },
	}

	for _, match := range stages {
		var found []Job
		for _, job := range jobs {
			if match(job.JobID) {
				found = append(found, job)
			}
		}
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			ids := make([]string, len(found))
			for i, job := range found {
				ids[i] = fmt.Sprintf("%s on %s", job.JobID, job.Server)
			}
			return Job{}, fmt.Errorf("%w '%s': %s", ErrAmbiguousJob, id, strings.Join(ids, ", "))
		}
	}
	return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// HostOf resolves the hostname of the server a job was listed on.
func (m *Manager) HostOf(job Job) (string, error) {
	srv, ok := m.config.ServerByName(job.Server)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, job.Server)
	}
	return srv.Hostname, nil
}

// Kill runs qdel for the job on the server that reported it and returns
// the command output.
func (m *Manager) Kill(ctx context.Context, job Job) (string, error) {
	host, err := m.HostOf(job)
	if err != nil {
		return "", err
	}

	cmd := remote.Join(m.config.Pbs.QdelPath, job.JobID)
	log.Debugf("Running on %s: %s", host, cmd)
	out, err := m.exec.Run(ctx, host, cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout + out.Stderr), nil
}

// CheckPurgePath rejects paths that must never be passed to rm -rf.
func (m *Manager) CheckPurgePath(dir string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" || dir == NotAvailable {
		return fmt.Errorf("%w: job directory is unknown", ErrUnsafePath)
	}
	if !path.IsAbs(dir) {
		return fmt.Errorf("%w '%s': not an absolute path", ErrUnsafePath, dir)
	}

	cleaned := path.Clean(dir)
	base := path.Clean("/" + m.config.Paths.LinuxBasePath)
	switch cleaned {
	case "/", base, path.Clean(m.UserRoot()):
		return fmt.Errorf("%w '%s'", ErrUnsafePath, dir)
	}
	return nil
}

// PurgeJobDir removes the job directory on the job's server.
func (m *Manager) PurgeJobDir(ctx context.Context, job Job) error {
	if err := m.CheckPurgePath(job.JobPath); err != nil {
		return err
	}
	host, err := m.HostOf(job)
	if err != nil {
		return err
	}

	cmd := remote.Join("rm", "-rf", "--", path.Clean(job.JobPath))
	log.Debugf("Running on %s: %s", host, cmd)
	_, err = m.exec.Run(ctx, host, cmd)
	return err
}

// Submit runs qsub with script in remoteDir on host and returns what qsub
// printed, normally the new job id. An empty script uses the configured
// submit script name.
func (m *Manager) Submit(ctx context.Context, host, remoteDir, script string) (string, error) {
	if _, ok := m.config.ServerByHostname(host); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, host)
	}
	if script == "" {
		script = m.config.Pbs.SubmitScriptName
	}

	cmd := "cd " + remote.Quote(remoteDir) + " && " + remote.Join(m.config.Pbs.QsubPath, script)
	log.Debugf("Running on %s: %s", host, cmd)
	out, err := m.exec.Run(ctx, host, cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// LogPath is the remote simulation log of a job.
func (m *Manager) LogPath(job Job) (string, error) {
	if job.JobPath == "" || job.JobPath == NotAvailable {
		return "", fmt.Errorf("job %s has no known directory", job.JobID)
	}
	return path.Join(job.JobPath, m.config.Tail.LogRelativePath), nil
}
