// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package dates handles calendar days: file name date tokens, day ranges and nearest-date matching.
package dates

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Layout of date tokens in file names
const TokenLayout = "20060102"

// Layout of dates in ranges and configuration
const DayLayout = "2006-01-02"

// Layout of timestamps in time series records
const ISOLayout = "2006-01-02T15:04:05"

// Truncates to the calendar day, in UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Formats the day as a file name token, e.g. 20240315
func Token(t time.Time) string {
	return t.Format(TokenLayout)
}

// Parses a file name token like 20240315
func ParseToken(s string) (time.Time, error) {
	t, err := time.Parse(TokenLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date token '%s': %w", s, err)
	}
	return t, nil
}

// Returns the underscore-separated token at the given position of the file's base name,
// without extension
func TokenAt(fileName string, position int) (string, error) {
	base := filepath.Base(fileName)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	parts := strings.Split(base, "_")
	if position < 0 || position >= len(parts) {
		return "", fmt.Errorf("file name %s has no token at position %d", fileName, position)
	}
	return parts[position], nil
}

// Parses the date token at the given position of the file's base name
func FromFileName(fileName string, position int) (time.Time, error) {
	tok, err := TokenAt(fileName, position)
	if err != nil {
		return time.Time{}, err
	}
	return ParseToken(tok)
}

// Absolute difference in calendar days
func DaysBetween(a, b time.Time) int {
	d := int(Day(a).Sub(Day(b)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// Returns the available day with minimum absolute day distance to the target.
// Ties go to the earliest day. Returns false if nothing is available
func Nearest(target time.Time, available []time.Time) (time.Time, bool) {
	var best time.Time
	bestDist, found := 0, false
	for _, a := range available {
		d := DaysBetween(target, a)
		if !found || d < bestDist || (d == bestDist && Day(a).Before(Day(best))) {
			best, bestDist, found = a, d, true
		}
	}
	return best, found
}

// Returns all days from start to end, inclusive
func Range(start, end time.Time) []time.Time {
	var res []time.Time
	for d := Day(start); !d.After(Day(end)); d = d.AddDate(0, 0, 1) {
		res = append(res, d)
	}
	return res
}

// Parses a range like 2024-01-01/2024-12-31
func ParseRange(s string) (start, end time.Time, err error) {
	from, to, ok := strings.Cut(s, "/")
	if !ok {
		return start, end, fmt.Errorf("date range '%s' must have the form start/end", s)
	}
	if start, err = time.Parse(DayLayout, strings.TrimSpace(from)); err != nil {
		return start, end, fmt.Errorf("date range start: %w", err)
	}
	if end, err = time.Parse(DayLayout, strings.TrimSpace(to)); err != nil {
		return start, end, fmt.Errorf("date range end: %w", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("date range '%s' ends before it starts", s)
	}
	return start, end, nil
}

// The default range for a season: the whole calendar year
func SeasonRange(season int) string {
	return fmt.Sprintf("%04d-01-01/%04d-12-31", season, season)
}

// Sorts days ascending and removes duplicates, in place
func Unique(days []time.Time) []time.Time {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	o := 0
	for i, d := range days {
		if i == 0 || !Day(d).Equal(Day(days[o-1])) {
			days[o] = d
			o++
		}
	}
	return days[:o]
}
