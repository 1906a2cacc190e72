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

// Package pathmap translates between paths on locally mapped network drives
// and the corresponding paths on the remote servers that export them.
//
// A drive X mapped to server S exposes S's directory <base>/<user>, so
// X:\proj\sim on the local side is <base>/<user>/proj/sim on S.
package pathmap

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

var (
	ErrUnmappedDrive = errors.New("unmapped drive")
	ErrNoDrive       = errors.New("path has no drive letter")
	ErrNotUnderBase  = errors.New("remote path is outside the mapped directory")
)

type Translator struct {
	drives   map[byte]string
	basePath string
	username string
}

// New builds a translator from a drive letter -> server table. Keys may be
// given in either case and with or without a trailing colon.
func New(drives map[string]string, basePath, username string) (*Translator, error) {
	if username == "" {
		return nil, errors.New("username cannot be empty")
	}

	t := &Translator{
		drives:   make(map[byte]string, len(drives)),
		basePath: cleanBase(basePath),
		username: username,
	}
	for key, server := range drives {
		letter, ok := normalizeDrive(key)
		if !ok {
			return nil, fmt.Errorf("invalid drive letter %q", key)
		}
		if server == "" {
			return nil, fmt.Errorf("drive %c: empty server", letter)
		}
		t.drives[letter] = server
	}
	return t, nil
}

func normalizeDrive(key string) (byte, bool) {
	key = strings.TrimSuffix(strings.TrimSpace(key), ":")
	if len(key) != 1 {
		return 0, false
	}
	c := key[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return 0, false
	}
	return c, true
}

func cleanBase(base string) string {
	base = strings.ReplaceAll(base, `\`, "/")
	if base == "" {
		return ""
	}
	cleaned := path.Clean(base)
	if cleaned == "/" {
		return ""
	}
	return cleaned
}

// UserRoot is the remote directory every mapped drive points at.
func (t *Translator) UserRoot() string {
	return t.basePath + "/" + t.username
}

// SplitDrive returns the upper-case drive letter of a Windows style path and
// the remainder after "X:".
func SplitDrive(localPath string) (byte, string, bool) {
	if len(localPath) < 2 || localPath[1] != ':' {
		return 0, "", false
	}
	letter, ok := normalizeDrive(localPath[:1])
	if !ok {
		return 0, "", false
	}
	return letter, localPath[2:], true
}

// ToRemote maps a local path on a mapped drive to the server owning the
// drive and the path on that server.
func (t *Translator) ToRemote(localPath string) (server, remotePath string, err error) {
	letter, rest, ok := SplitDrive(strings.TrimSpace(localPath))
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrNoDrive, localPath)
	}

	server, ok = t.drives[letter]
	if !ok {
		return "", "", fmt.Errorf("%w %c:", ErrUnmappedDrive, letter)
	}

	segments := splitSegments(rest)
	remotePath = t.UserRoot()
	if len(segments) > 0 {
		remotePath += "/" + strings.Join(segments, "/")
	}
	return server, remotePath, nil
}

// splitSegments resolves "." and ".." the way Windows does for a drive
// root: ".." at the root stays at the root.
func splitSegments(p string) []string {
	p = strings.ReplaceAll(p, `\`, "/")
	var segments []string
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, s)
		}
	}
	return segments
}

// ToLocal is the inverse of ToRemote for a path on server.
func (t *Translator) ToLocal(server, remotePath string) (string, error) {
	letter, ok := t.DriveFor(server)
	if !ok {
		return "", fmt.Errorf("%w: no drive for server %s", ErrUnmappedDrive, server)
	}

	root := t.UserRoot()
	cleaned := path.Clean(remotePath)
	if cleaned != root && !strings.HasPrefix(cleaned, root+"/") {
		return "", fmt.Errorf("%w: %s", ErrNotUnderBase, remotePath)
	}

	rest := strings.TrimPrefix(strings.TrimPrefix(cleaned, root), "/")
	return string(letter) + `:\` + strings.ReplaceAll(rest, "/", `\`), nil
}

// DriveFor returns the drive letter mapped to server. When a server backs
// several drives the lowest letter wins.
func (t *Translator) DriveFor(server string) (byte, bool) {
	for _, letter := range t.Drives() {
		if t.drives[letter] == server {
			return letter, true
		}
	}
	return 0, false
}

// ServerFor returns the server mapped to the drive letter.
func (t *Translator) ServerFor(drive byte) (string, bool) {
	letter, ok := normalizeDrive(string(drive))
	if !ok {
		return "", false
	}
	server, ok := t.drives[letter]
	return server, ok
}

// Drives returns the mapped drive letters in ascending order.
func (t *Translator) Drives() []byte {
	letters := make([]byte, 0, len(t.drives))
	for letter := range t.drives {
		letters = append(letters, letter)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	return letters
}

// DriveList renders the mapped letters as "X:, Y:" for messages.
func (t *Translator) DriveList() string {
	var parts []string
	for _, letter := range t.Drives() {
		parts = append(parts, string(letter)+":")
	}
	return strings.Join(parts, ", ")
}
