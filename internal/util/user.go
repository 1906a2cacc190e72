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

package util

import (
	"errors"
	"os"
	"os/user"
	"strings"
)

// CurrentUsername returns the login name of the local user without any
// Windows domain prefix. The same name is used on the remote side.
func CurrentUsername() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return StripDomain(u.Username), nil
	}

	for _, env := range []string{"USERNAME", "USER", "LOGNAME"} {
		if name := os.Getenv(env); name != "" {
			return StripDomain(name), nil
		}
	}
	return "", errors.New("cannot determine the current user name")
}

// StripDomain turns "CORP\alice" or "alice@corp" into "alice".
func StripDomain(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return name
}
