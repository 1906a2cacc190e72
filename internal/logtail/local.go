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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nxadm/tail"
	log "github.com/sirupsen/logrus"
)

// LocalFile is a Source backed by a file on a local or mapped drive.
type LocalFile struct {
	Path string
}

func (f *LocalFile) Size(_ context.Context) (int64, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("log path %q is a directory", f.Path)
	}
	return info.Size(), nil
}

func (f *LocalFile) ReadRange(_ context.Context, offset, n int64) ([]byte, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(io.NewSectionReader(file, offset, n))
}

func (f *LocalFile) LastLines(_ context.Context, n int, upTo int64) ([]byte, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, upTo))
	if err != nil {
		return nil, err
	}
	return lastLines(data, n), nil
}

// lastLines returns the suffix of data holding its last n lines. A final
// newline does not start another line.
func lastLines(data []byte, n int) []byte {
	if n <= 0 || len(data) == 0 {
		return nil
	}

	end := len(data)
	if data[end-1] == '\n' {
		end--
	}
	for i := end - 1; i >= 0; i-- {
		if data[i] == '\n' {
			n--
			if n == 0 {
				return data[i+1:]
			}
		}
	}
	return data
}

// FollowLocal prints the last seedLines lines of path and then follows it
// until ctx is done. The file may not exist yet and may be rotated.
func FollowLocal(ctx context.Context, path string, seedLines int, w io.Writer) error {
	src := &LocalFile{Path: path}

	var offset int64
	if size, err := src.Size(ctx); err == nil {
		seed, err := src.LastLines(ctx, seedLines, size)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := w.Write(seed); err != nil {
			return fmt.Errorf("write log output: %w", err)
		}
		offset = size
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	config := tail.Config{
		Follow:    true,
		ReOpen:    true,
		Poll:      true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	}

	t, err := tail.TailFile(path, config)
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", path, err)
	}
	defer t.Cleanup()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				log.Debugf("Tail %s: %v", path, line.Err)
				continue
			}
			if _, err := fmt.Fprintln(w, line.Text); err != nil {
				_ = t.Stop()
				return fmt.Errorf("write log output: %w", err)
			}
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		}
	}
}
