package pathmap

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func newTestTranslator(t *testing.T, base string) *Translator {
	t.Helper()
	tr, err := New(map[string]string{"X": "serverA", "y": "serverB", "Z:": "serverA"}, base, "alice")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return tr
}

func TestToRemote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		base       string
		input      string
		wantServer string
		wantPath   string
	}{
		{
			name:       "example from the operator guide",
			base:       "/mnt/dir",
			input:      `X:\proj\sim`,
			wantServer: "serverA",
			wantPath:   "/mnt/dir/alice/proj/sim",
		},
		{
			name:       "trailing slash in base is not duplicated",
			base:       "/mnt/dir/",
			input:      `X:\proj`,
			wantServer: "serverA",
			wantPath:   "/mnt/dir/alice/proj",
		},
		{
			name:       "lower case drive letter",
			base:       "/mnt/dir",
			input:      `y:\data\run1`,
			wantServer: "serverB",
			wantPath:   "/mnt/dir/alice/data/run1",
		},
		{
			name:       "drive root",
			base:       "/mnt/dir",
			input:      `X:\`,
			wantServer: "serverA",
			wantPath:   "/mnt/dir/alice",
		},
		{
			name:       "bare drive",
			base:       "/mnt/dir",
			input:      `Z:`,
			wantServer: "serverA",
			wantPath:   "/mnt/dir/alice",
		},
		{
			name:       "mixed and repeated separators",
			base:       "/mnt/dir",
			input:      `X:\\proj//sim\case\`,
			wantServer: "serverA",
			wantPath:   "/mnt/dir/alice/proj/sim/case",
		},
		{
			name:       "dot segments",
			base:       "/mnt/dir",
			input:      `X:\proj\.\old\..\sim`,
			wantServer: "serverA",
			wantPath:   "/mnt/dir/alice/proj/sim",
		},
		{
			name:       "parent of drive root stays at root",
			base:       "/mnt/dir",
			input:      `X:\..\..\proj`,
			wantServer: "serverA",
			wantPath:   "/mnt/dir/alice/proj",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := newTestTranslator(t, tt.base)
			server, remote, err := tr.ToRemote(tt.input)
			if err != nil {
				t.Fatalf("ToRemote(%q) unexpected error: %v", tt.input, err)
			}
			if server != tt.wantServer || remote != tt.wantPath {
				t.Fatalf("ToRemote(%q) = (%q, %q), want (%q, %q)",
					tt.input, server, remote, tt.wantServer, tt.wantPath)
			}
		})
	}
}

func TestToRemoteSingleSeparator(t *testing.T) {
	t.Parallel()

	tr := newTestTranslator(t, "/mnt/dir/")
	for _, letter := range tr.Drives() {
		input := string(letter) + `:\\a\\\b\c\`
		_, remote, err := tr.ToRemote(input)
		if err != nil {
			t.Fatalf("ToRemote(%q) unexpected error: %v", input, err)
		}
		if strings.Contains(remote, "//") {
			t.Fatalf("ToRemote(%q) = %q contains a doubled separator", input, remote)
		}
		if remote != "/mnt/dir/alice/a/b/c" {
			t.Fatalf("ToRemote(%q) = %q", input, remote)
		}
	}
}

func TestToRemoteErrors(t *testing.T) {
	t.Parallel()

	tr := newTestTranslator(t, "/mnt/dir")

	for _, input := range []string{`Q:\proj`, `q:\proj`, `C:`, `c:\`} {
		_, remote, err := tr.ToRemote(input)
		if !errors.Is(err, ErrUnmappedDrive) {
			t.Fatalf("ToRemote(%q) error = %v, want ErrUnmappedDrive", input, err)
		}
		if remote != "" {
			t.Fatalf("ToRemote(%q) returned path %q alongside an error", input, remote)
		}
	}

	for _, input := range []string{"", `\\share\proj`, "/home/alice", "proj"} {
		if _, _, err := tr.ToRemote(input); !errors.Is(err, ErrNoDrive) {
			t.Fatalf("ToRemote(%q) error = %v, want ErrNoDrive", input, err)
		}
	}
}

func TestToLocal(t *testing.T) {
	t.Parallel()

	tr := newTestTranslator(t, "/mnt/dir")

	got, err := tr.ToLocal("serverB", "/mnt/dir/alice/data/run1")
	if err != nil {
		t.Fatalf("ToLocal unexpected error: %v", err)
	}
	if got != `Y:\data\run1` {
		t.Fatalf("ToLocal = %q, want %q", got, `Y:\data\run1`)
	}

	// serverA backs X and Z, the lowest letter is used.
	got, err = tr.ToLocal("serverA", "/mnt/dir/alice")
	if err != nil {
		t.Fatalf("ToLocal unexpected error: %v", err)
	}
	if got != `X:\` {
		t.Fatalf("ToLocal = %q, want %q", got, `X:\`)
	}

	if _, err := tr.ToLocal("serverA", "/mnt/dir/bob/proj"); !errors.Is(err, ErrNotUnderBase) {
		t.Fatalf("ToLocal outside root error = %v, want ErrNotUnderBase", err)
	}
	if _, err := tr.ToLocal("serverC", "/mnt/dir/alice/proj"); !errors.Is(err, ErrUnmappedDrive) {
		t.Fatalf("ToLocal unknown server error = %v, want ErrUnmappedDrive", err)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tr := newTestTranslator(t, "/mnt/dir")
	for _, input := range []string{`X:\proj\sim`, `Y:\a`, `X:\`} {
		server, remote, err := tr.ToRemote(input)
		if err != nil {
			t.Fatalf("ToRemote(%q) unexpected error: %v", input, err)
		}
		local, err := tr.ToLocal(server, remote)
		if err != nil {
			t.Fatalf("ToLocal(%q, %q) unexpected error: %v", server, remote, err)
		}
		if local != input {
			t.Fatalf("round trip of %q gave %q", input, local)
		}
	}
}

func TestNewRejectsInvalidDrives(t *testing.T) {
	t.Parallel()

	for _, drives := range []map[string]string{
		{"XY": "serverA"},
		{"1": "serverA"},
		{"X": ""},
	} {
		if _, err := New(drives, "/mnt/dir", "alice"); err == nil {
			t.Fatalf("New(%v) expected error", drives)
		}
	}
	if _, err := New(map[string]string{"X": "serverA"}, "/mnt/dir", ""); err == nil {
		t.Fatalf("New with empty username expected error")
	}
}

func TestDrives(t *testing.T) {
	t.Parallel()

	tr := newTestTranslator(t, "/mnt/dir")
	if got, want := tr.Drives(), []byte{'X', 'Y', 'Z'}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Drives() = %q, want %q", got, want)
	}
	if got := tr.DriveList(); got != "X:, Y:, Z:" {
		t.Fatalf("DriveList() = %q", got)
	}
	if server, ok := tr.ServerFor('y'); !ok || server != "serverB" {
		t.Fatalf("ServerFor('y') = (%q, %v)", server, ok)
	}
}
