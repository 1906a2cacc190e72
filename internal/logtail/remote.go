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

package logtail

import (
	"PBSFrontEnd/internal/remote"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RemoteFile reads a file on a server with POSIX shell tools.
type RemoteFile struct {
	Exec remote.Executor
	Host string
	Path string
}

func (f *RemoteFile) run(ctx context.Context, command string) (string, error) {
	out, err := f.Exec.Run(ctx, f.Host, command)
	if err != nil {
		return "", err
	}
	return out.Stdout, nil
}

func (f *RemoteFile) Size(ctx context.Context) (int64, error) {
	out, err := f.run(ctx, "wc -c < "+remote.Quote(f.Path))
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected size of %s: %q", f.Path, out)
	}
	return size, nil
}

func (f *RemoteFile) ReadRange(ctx context.Context, offset, n int64) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	out, err := f.run(ctx, fmt.Sprintf("tail -c +%d %s | head -c %d", offset+1, remote.Quote(f.Path), n))
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (f *RemoteFile) LastLines(ctx context.Context, n int, upTo int64) ([]byte, error) {
	if n <= 0 || upTo <= 0 {
		return nil, nil
	}
	out, err := f.run(ctx, fmt.Sprintf("head -c %d %s | tail -n %d", upTo, remote.Quote(f.Path), n))
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
