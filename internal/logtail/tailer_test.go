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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// memSource is an in-memory file. While missing is set every read fails.
type memSource struct {
	mu      sync.Mutex
	data    []byte
	missing bool
	reads   int
}

func (s *memSource) Size(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return 0, os.ErrNotExist
	}
	return int64(len(s.data)), nil
}

func (s *memSource) ReadRange(_ context.Context, offset, n int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return nil, os.ErrNotExist
	}
	s.reads++
	end := min(offset+n, int64(len(s.data)))
	return append([]byte(nil), s.data[offset:end]...), nil
}

func (s *memSource) LastLines(_ context.Context, n int, upTo int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), lastLines(s.data[:upTo], n)...), nil
}

func (s *memSource) append(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, text...)
}

func (s *memSource) set(text string, missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = []byte(text)
	s.missing = missing
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if out.String() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output = %q, want %q", out.String(), want)
}

func startTailer(t *testing.T, src Source, seedLines int) (*syncBuffer, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)

	go func() {
		done <- New(src, 5*time.Millisecond, seedLines).Run(ctx, out)
	}()

	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("tailer did not stop")
			return nil
		}
	}
	t.Cleanup(func() { cancel() })
	return out, stop
}

func TestLastLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		data string
		n    int
		want string
	}{
		{data: "a\nb\nc\n", n: 2, want: "b\nc\n"},
		{data: "a\nb\nc", n: 2, want: "b\nc"},
		{data: "a\nb\nc\n", n: 5, want: "a\nb\nc\n"},
		{data: "a\nb\nc\n", n: 0, want: ""},
		{data: "", n: 3, want: ""},
		{data: "\n\n", n: 1, want: "\n"},
	}

	for _, tt := range tests {
		if got := string(lastLines([]byte(tt.data), tt.n)); got != tt.want {
			t.Errorf("lastLines(%q, %d) = %q, want %q", tt.data, tt.n, got, tt.want)
		}
	}
}

func TestTailerEmitsAppendedBytesOnce(t *testing.T) {
	t.Parallel()

	src := &memSource{data: []byte("one\ntwo\nthree\n")}
	out, stop := startTailer(t, src, 2)

	waitFor(t, out, "two\nthree\n")

	src.append("four\n")
	waitFor(t, out, "two\nthree\nfour\n")

	src.append("five\nsi")
	waitFor(t, out, "two\nthree\nfour\nfive\nsi")
	src.append("x\n")
	waitFor(t, out, "two\nthree\nfour\nfive\nsix\n")

	// A few idle ticks must not repeat anything.
	time.Sleep(30 * time.Millisecond)
	if err := stop(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, want := out.String(), "two\nthree\nfour\nfive\nsix\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestTailerRetriesMissingFile(t *testing.T) {
	t.Parallel()

	src := &memSource{missing: true}
	out, stop := startTailer(t, src, 50)

	time.Sleep(30 * time.Millisecond)
	if got := out.String(); got != "" {
		t.Fatalf("output before file exists = %q", got)
	}

	src.set("started\n", false)
	waitFor(t, out, "started\n")

	src.set("started\n", true)
	time.Sleep(30 * time.Millisecond)
	src.set("started\nstep 1\n", false)
	waitFor(t, out, "started\nstep 1\n")

	if err := stop(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestTailerReseedsAfterTruncation(t *testing.T) {
	t.Parallel()

	src := &memSource{data: []byte("old 1\nold 2\nold 3\n")}
	out, stop := startTailer(t, src, 1)
	waitFor(t, out, "old 3\n")

	src.set("new 1\nnew 2\n", false)
	waitFor(t, out, "old 3\n"+ResetMarker+"new 2\n")

	src.append("new 3\n")
	waitFor(t, out, "old 3\n"+ResetMarker+"new 2\nnew 3\n")

	if err := stop(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestTailerWriteError(t *testing.T) {
	t.Parallel()

	src := &memSource{data: []byte("line\n")}
	err := New(src, time.Millisecond, 5).Run(context.Background(), failingWriter{})
	if err == nil || !strings.Contains(err.Error(), "closed pipe") {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestLocalFileSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "messag")
	if err := os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	src := &LocalFile{Path: path}
	ctx := context.Background()

	size, err := src.Size(ctx)
	if err != nil || size != 8 {
		t.Fatalf("Size() = %d, %v", size, err)
	}
	data, err := src.ReadRange(ctx, 4, 10)
	if err != nil || string(data) != "c\nd\n" {
		t.Fatalf("ReadRange() = %q, %v", data, err)
	}
	data, err = src.LastLines(ctx, 2, 6)
	if err != nil || string(data) != "b\nc\n" {
		t.Fatalf("LastLines() = %q, %v", data, err)
	}

	if _, err := (&LocalFile{Path: path + ".missing"}).Size(ctx); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Size() of missing file error = %v", err)
	}
}

func TestFollowLocal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "messag")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- FollowLocal(ctx, path, 2, out) }()

	waitFor(t, out, "b\nc\n")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("d\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	waitFor(t, out, "b\nc\nd\n")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("FollowLocal() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("FollowLocal did not stop")
	}
}
