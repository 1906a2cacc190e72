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

// Package remote runs shell commands on the cluster servers.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alessio/shellescape"
)

var ErrConnect = errors.New("connection failed")

type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs one command on a host and waits for it to finish.
type Executor interface {
	Run(ctx context.Context, host, command string) (Output, error)
	Close() error
}

// ExitError reports a command that ran but exited with a non-zero status.
type ExitError struct {
	Host    string
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command on %s exited with status %d", e.Host, e.Code)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Quote quotes s for use as a single word in a POSIX shell command.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// Join quotes every argument and joins them with spaces.
func Join(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}
