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

package remote

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// LocalExecutor runs commands through a local shell regardless of the host.
// It backs the "local" transport used for testing against a workstation
// that has the cluster file systems mounted.
type LocalExecutor struct {
	Shell []string
}

func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{Shell: []string{"sh", "-c"}}
}

func (e *LocalExecutor) Run(ctx context.Context, host, command string) (Output, error) {
	log.Tracef("[local:%s] %s", host, command)

	args := append(append([]string{}, e.Shell[1:]...), command)
	cmd := exec.CommandContext(ctx, e.Shell[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, &ExitError{Host: host, Command: command, Code: out.ExitCode, Stderr: out.Stderr}
	}
	return out, err
}

func (e *LocalExecutor) Close() error {
	return nil
}
