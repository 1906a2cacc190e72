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
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var memRegex = regexp.MustCompile(`^([0-9]+(\.?[0-9]*))\s*([KkMmGgTt]?)([Bb]?)$`)

// ParseMemStringAsByte parses memory sizes as reported by PBS and by the
// job listing script, e.g. "512kb", "300.2Mb", "1.5Gb", "2048".
// A bare number is taken as bytes.
func ParseMemStringAsByte(mem string) (uint64, error) {
	result := memRegex.FindStringSubmatch(strings.TrimSpace(mem))
	if result == nil {
		return 0, fmt.Errorf("invalid memory format: %q", mem)
	}
	sz, err := ParseFloatWithPrecision(result[1], 10)
	if err != nil {
		return 0, err
	}
	switch result[3] {
	case "K", "k":
		return uint64(1024 * sz), nil
	case "M", "m":
		return uint64(1024 * 1024 * sz), nil
	case "G", "g":
		return uint64(1024 * 1024 * 1024 * sz), nil
	case "T", "t":
		return uint64(1024 * 1024 * 1024 * 1024 * sz), nil
	}
	return uint64(sz), nil
}

// Parses a string containing a float number with a given precision.
func ParseFloatWithPrecision(val string, decimalPlaces int) (float64, error) {
	num, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, err
	}

	shift := math.Pow(10, float64(decimalPlaces))
	return math.Floor(num*shift) / shift, nil
}

// IsDigits reports whether s is a non-empty run of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
