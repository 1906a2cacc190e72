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
	"PBSFrontEnd/internal/logtail"
	"PBSFrontEnd/internal/pathmap"
	"PBSFrontEnd/internal/pbs"
	"PBSFrontEnd/internal/remote"
	"PBSFrontEnd/internal/util"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/xlab/treeprint"
)

type ListOptions struct {
	SortBy   string
	Status   string
	Owner    string
	Full     bool
	NoHeader bool
	Json     bool
}

// remoteErr picks the exit code for a failed remote operation.
func remoteErr(err error, format string, a ...any) error {
	msg := fmt.Sprintf(format, a...)
	var exitErr *remote.ExitError
	switch {
	case errors.Is(err, remote.ErrConnect):
		return util.WrapCmdErr(util.ErrorNetwork, "%s: %v", msg, err)
	case errors.As(err, &exitErr):
		return util.WrapCmdErr(util.ErrorBackend, "%s: %v", msg, err)
	case errors.Is(err, context.Canceled):
		return util.WrapCmdErr(util.ErrorGeneric, "%s: interrupted", msg)
	}
	return util.WrapCmdErr(util.ErrorBackend, "%s: %v", msg, err)
}

func lookupErr(err error) error {
	switch {
	case errors.Is(err, pbs.ErrJobNotFound), errors.Is(err, pbs.ErrAmbiguousJob):
		return util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
	case errors.Is(err, pbs.ErrUnknownServer):
		return util.WrapCmdErr(util.ErrorConfig, "%v", err)
	}
	return util.WrapCmdErr(util.ErrorGeneric, "%v", err)
}

// fetch refreshes the job snapshot. It fails only when no server answered.
func (c *Console) fetch(ctx context.Context) error {
	results := c.Manager.FetchAll(ctx)
	for _, r := range results {
		if r.Err != nil {
			log.Warnf("Failed to query %s (%s): %v", r.Server.Name, r.Server.Hostname, r.Err)
		}
	}
	if len(results) > 0 && failedServers(results) == len(results) {
		return util.NewCmdErr(util.ErrorNetwork, "No server could be queried.")
	}
	return nil
}

func (c *Console) List(ctx context.Context, opts ListOptions) error {
	sortKey := pbs.KeyJobID
	if opts.SortBy != "" {
		key, err := pbs.ParseSortKey(opts.SortBy)
		if err != nil {
			return util.WrapCmdErr(util.ErrorCmdArg, "Invalid sort field: %v", err)
		}
		sortKey = key
	}

	if err := c.fetch(ctx); err != nil {
		return err
	}

	jobs := c.Manager.Jobs()
	if opts.Status != "" {
		jobs = pbs.FilterByStatus(jobs, opts.Status)
	}
	if opts.Owner != "" {
		jobs = pbs.FilterByOwner(jobs, opts.Owner)
	}
	if err := pbs.SortJobs(jobs, sortKey); err != nil {
		return util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
	}

	if opts.Json {
		return PrintJobJson(c.out, jobs)
	}
	PrintJobTable(c.out, jobs, TableOptions{Full: opts.Full, NoHeader: opts.NoHeader})
	return nil
}

func (c *Console) notOnMappedDrive(p string) error {
	return util.WrapCmdErr(util.ErrorCmdArg, "%s is not on a mapped drive (%s).", p, c.Translator.DriveList())
}

// SubmitPath submits the job in a directory on a mapped drive. A relative
// path is taken from the working directory; an empty one means the working
// directory itself.
func (c *Console) SubmitPath(ctx context.Context, localPath, script string) error {
	localPath, err := c.absPath(localPath)
	if err != nil {
		return err
	}

	host, remotePath, err := c.Translator.ToRemote(localPath)
	if err != nil {
		if errors.Is(err, pathmap.ErrNoDrive) || errors.Is(err, pathmap.ErrUnmappedDrive) {
			return c.notOnMappedDrive(localPath)
		}
		return util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
	}
	_, err = c.submit(ctx, host, remotePath, script)
	return err
}

func (c *Console) submit(ctx context.Context, host, remotePath, script string) (string, error) {
	if script == "" {
		script = c.Config.Pbs.SubmitScriptName
	}
	c.printf("\nSubmitting job on %s...\n", host)
	c.printf("  Path:   %s\n", remotePath)
	c.printf("  Script: %s\n\n", script)

	id, err := c.Manager.Submit(ctx, host, remotePath, script)
	if err != nil {
		if errors.Is(err, pbs.ErrUnknownServer) {
			return "", lookupErr(err)
		}
		return "", remoteErr(err, "Job submission on %s failed", host)
	}
	c.printf("Job submitted successfully: %s\n", id)
	return id, nil
}

func (c *Console) killJob(ctx context.Context, job pbs.Job) error {
	c.printf("\nKilling job %s on %s...\n", job.JobID, job.Server)
	out, err := c.Manager.Kill(ctx, job)
	if err != nil {
		if errors.Is(err, pbs.ErrUnknownServer) {
			return lookupErr(err)
		}
		return remoteErr(err, "Failed to kill job %s", job.JobID)
	}
	c.printf("Job %s killed successfully.\n", job.JobID)
	if out != "" {
		c.printf("  Output: %s\n", out)
	}
	return nil
}

func (c *Console) purgeJob(ctx context.Context, job pbs.Job) error {
	if err := c.Manager.PurgeJobDir(ctx, job); err != nil {
		if errors.Is(err, pbs.ErrUnsafePath) {
			return util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
		}
		return remoteErr(err, "Failed to remove %s", job.JobPath)
	}
	c.printf("Deleted job directory: %s\n", job.JobPath)
	return nil
}

func (c *Console) Kill(ctx context.Context, id string, purge bool) error {
	if err := c.fetch(ctx); err != nil {
		return err
	}
	job, err := c.Manager.FindJob(id)
	if err != nil {
		return lookupErr(err)
	}

	if err := c.killJob(ctx, job); err != nil {
		return err
	}
	if purge {
		return c.purgeJob(ctx, job)
	}
	return nil
}

// FollowLog streams the log of a job until the operator interrupts.
func (c *Console) FollowLog(ctx context.Context, id string, local bool) error {
	if err := c.fetch(ctx); err != nil {
		return err
	}
	job, err := c.Manager.FindJob(id)
	if err != nil {
		return lookupErr(err)
	}
	return c.followJobLog(ctx, job, local)
}

func (c *Console) followJobLog(ctx context.Context, job pbs.Job, local bool) error {
	logPath, err := c.Manager.LogPath(job)
	if err != nil {
		return util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
	}
	host, err := c.Manager.HostOf(job)
	if err != nil {
		return lookupErr(err)
	}

	source := logPath
	if local {
		drivePath, err := c.Translator.ToLocal(host, logPath)
		if err != nil {
			return util.WrapCmdErr(util.ErrorCmdArg, "Log is not reachable through a mapped drive: %v", err)
		}
		source = drivePath
	}

	c.printf("\nViewing log for job: %s\n", job.JobID)
	c.printf("  Job Name: %s\n", job.JobName)
	c.printf("  Server:   %s\n", job.Server)
	c.printf("  Log file: %s\n", source)
	c.printf("%s\nPress Ctrl+C to stop watching the log\n%s\n", separator, separator)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if local {
		err = logtail.FollowLocal(ctx, c.localPath(source), c.Config.Tail.SeedLines, c.out)
	} else {
		file := &logtail.RemoteFile{Exec: c.Exec, Host: host, Path: logPath}
		err = logtail.New(file, c.Config.Tail.PollInterval, c.Config.Tail.SeedLines).Run(ctx, c.out)
	}
	if err != nil {
		return util.WrapCmdErr(util.ErrorGeneric, "Following %s failed: %v", source, err)
	}

	c.printf("\n%s\nStopped watching log file\n%s\n", separator, separator)
	return nil
}

func (c *Console) Translate(p, reverseServer string) error {
	if reverseServer != "" {
		srv, ok := c.Config.ServerByName(reverseServer)
		if !ok {
			if srv, ok = c.Config.ServerByHostname(reverseServer); !ok {
				return util.WrapCmdErr(util.ErrorCmdArg, "Unknown server '%s'.", reverseServer)
			}
		}
		local, err := c.Translator.ToLocal(srv.Hostname, p)
		if err != nil {
			return util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
		}
		c.println(local)
		return nil
	}

	p, err := c.absPath(p)
	if err != nil {
		return err
	}
	host, remotePath, err := c.Translator.ToRemote(p)
	if err != nil {
		if errors.Is(err, pathmap.ErrNoDrive) || errors.Is(err, pathmap.ErrUnmappedDrive) {
			return c.notOnMappedDrive(p)
		}
		return util.WrapCmdErr(util.ErrorCmdArg, "%v", err)
	}

	name := host
	if srv, ok := c.Config.ServerByHostname(host); ok {
		name = fmt.Sprintf("%s (%s)", srv.Name, host)
	}
	c.printf("Server: %s\n", name)
	c.printf("Linux path: %s\n", remotePath)
	return nil
}

// drivesOf lists the drives served by host as "X:, Y:".
func (c *Console) drivesOf(host string) string {
	var drives []string
	for _, letter := range c.Translator.Drives() {
		if srv, _ := c.Translator.ServerFor(letter); srv == host {
			drives = append(drives, string(letter)+":")
		}
	}
	if len(drives) == 0 {
		return "?"
	}
	return strings.Join(drives, ", ")
}

// Servers prints the configured servers as a tree. With ping every server
// is asked to run a trivial command.
func (c *Console) Servers(ctx context.Context, ping bool) error {
	tree := treeprint.NewWithRoot("Servers")
	unreachable := 0

	for _, srv := range c.Config.Servers {
		branch := tree.AddBranch(fmt.Sprintf("%s (%s)", srv.Name, srv.Hostname))
		branch.AddNode("Drive: " + c.drivesOf(srv.Hostname))
		branch.AddNode("Remote root: " + c.Translator.UserRoot())

		if !ping {
			continue
		}
		if _, err := c.Exec.Run(ctx, srv.Hostname, "true"); err != nil {
			unreachable++
			branch.AddNode(fmt.Sprintf("Status: unreachable (%v)", err))
		} else {
			branch.AddNode("Status: ok")
		}
	}
	c.println(tree.String())

	if unreachable > 0 {
		return util.WrapCmdErr(util.ErrorNetwork, "%d of %d servers are unreachable.", unreachable, len(c.Config.Servers))
	}
	return nil
}

// PrintSummary shows what the console is about to work with.
func (c *Console) PrintSummary() {
	c.printf("User: %s\n", c.User)
	c.printf("Remote script path: %s\n", c.Manager.ScriptPath())
	c.printf("Linux base path: %s\n", c.Config.Paths.LinuxBasePath)
	c.printf("PBS submit script: %s\n", c.Config.Pbs.SubmitScriptName)
	c.println("\nConfigured servers:")
	for _, srv := range c.Config.Servers {
		c.printf("  - %s (%s) -> Drive %s\n", srv.Name, srv.Hostname, c.drivesOf(srv.Hostname))
	}
}
