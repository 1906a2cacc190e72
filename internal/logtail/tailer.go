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

// Package logtail follows growing log files, either on a remote server by
// polling its size or on a local drive.
package logtail

import (
	"context"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// ResetMarker is written when the file shrinks below what was already shown.
const ResetMarker = "\n[Log file was reset/truncated]\n"

// Source is a file whose size and contents can be read at any time.
type Source interface {
	Size(ctx context.Context) (int64, error)
	// ReadRange returns up to n bytes starting at offset.
	ReadRange(ctx context.Context, offset, n int64) ([]byte, error)
	// LastLines returns the last n lines of the first upTo bytes.
	LastLines(ctx context.Context, n int, upTo int64) ([]byte, error)
}

type Tailer struct {
	Source    Source
	Interval  time.Duration
	SeedLines int

	offset int64
}

func New(src Source, interval time.Duration, seedLines int) *Tailer {
	return &Tailer{Source: src, Interval: interval, SeedLines: seedLines}
}

// Offset is the number of bytes of the file already written out.
func (t *Tailer) Offset() int64 {
	return t.offset
}

// Run writes the last SeedLines lines of the file, then every Interval the
// bytes appended since. Read failures are retried on the next tick. Run
// returns nil once ctx is done and an error only if w fails.
func (t *Tailer) Run(ctx context.Context, w io.Writer) error {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	seeded := false
	for {
		var err error
		if !seeded {
			seeded, err = t.seed(ctx, w)
		} else {
			seeded, err = t.poll(ctx, w)
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (t *Tailer) seed(ctx context.Context, w io.Writer) (bool, error) {
	size, err := t.Source.Size(ctx)
	if err != nil {
		t.retry(ctx, "size", err)
		return false, nil
	}

	data, err := t.Source.LastLines(ctx, t.SeedLines, size)
	if err != nil {
		t.retry(ctx, "seed", err)
		return false, nil
	}
	if _, err := w.Write(data); err != nil {
		return false, fmt.Errorf("write log output: %w", err)
	}

	t.offset = size
	return true, nil
}

func (t *Tailer) poll(ctx context.Context, w io.Writer) (bool, error) {
	size, err := t.Source.Size(ctx)
	if err != nil {
		t.retry(ctx, "size", err)
		return true, nil
	}

	switch {
	case size < t.offset:
		log.Debugf("Log shrank from %d to %d bytes", t.offset, size)
		if _, err := io.WriteString(w, ResetMarker); err != nil {
			return true, fmt.Errorf("write log output: %w", err)
		}
		t.offset = 0
		return t.seed(ctx, w)
	case size == t.offset:
		return true, nil
	}

	want := size - t.offset
	data, err := t.Source.ReadRange(ctx, t.offset, want)
	if err != nil {
		t.retry(ctx, "read", err)
		return true, nil
	}
	if int64(len(data)) > want {
		data = data[:want]
	}
	if _, err := w.Write(data); err != nil {
		return true, fmt.Errorf("write log output: %w", err)
	}

	t.offset += int64(len(data))
	return true, nil
}

func (t *Tailer) retry(ctx context.Context, op string, err error) {
	if ctx.Err() != nil {
		return
	}
	log.Debugf("Log %s failed, retrying in %v: %v", op, t.Interval, err)
}
