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


package dates

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNearest(t *testing.T) {
	avail := []time.Time{day("2024-03-20"), day("2024-03-10"), day("2024-03-01")}
	testCases := []struct {
		target string
		want   string
	}{
		{"2024-03-10", "2024-03-10"},
		{"2024-03-14", "2024-03-10"},
		{"2024-03-15", "2024-03-10"}, // tie between 10th and 20th goes to the earlier day
		{"2024-03-16", "2024-03-20"},
		{"2024-02-01", "2024-03-01"},
		{"2024-12-31", "2024-03-20"},
	}
	for _, tc := range testCases {
		got, ok := Nearest(day(tc.target), avail)
		if !ok || !got.Equal(day(tc.want)) {
			t.Errorf("Nearest(%s): got %v want %s", tc.target, got, tc.want)
		}
	}
	if _, ok := Nearest(day("2024-01-01"), nil); ok {
		t.Errorf("expected no result for empty input")
	}
}

func TestNearestTieIndependentOfOrder(t *testing.T) {
	a := []time.Time{day("2024-05-03"), day("2024-05-01")}
	b := []time.Time{day("2024-05-01"), day("2024-05-03")}
	ga, _ := Nearest(day("2024-05-02"), a)
	gb, _ := Nearest(day("2024-05-02"), b)
	if !ga.Equal(gb) || !ga.Equal(day("2024-05-01")) {
		t.Errorf("got %v and %v", ga, gb)
	}
}

func TestTokens(t *testing.T) {
	d, err := FromFileName("/data/site/2024/raw/s3/20240315_2.geotiff", 0)
	if err != nil || !d.Equal(day("2024-03-15")) {
		t.Errorf("got %v %v", d, err)
	}
	d, err = FromFileName("S2A_MSIL2A_20240401_REFL.tif", 2)
	if err != nil || Token(d) != "20240401" {
		t.Errorf("got %v %v", d, err)
	}
	if _, err := FromFileName("S2A_MSIL2A.tif", 2); err == nil {
		t.Errorf("expected error for missing token")
	}
	if _, err := ParseToken("2024-04-01"); err == nil {
		t.Errorf("expected error for malformed token")
	}
}

func TestRange(t *testing.T) {
	start, end, err := ParseRange(SeasonRange(2024))
	if err != nil {
		t.Fatal(err)
	}
	days := Range(start, end)
	if len(days) != 366 || !days[59].Equal(day("2024-02-29")) {
		t.Errorf("got %d days, day 59 %v", len(days), days[59])
	}
	if _, _, err := ParseRange("2024-02-01/2024-01-01"); err == nil {
		t.Errorf("expected error for reversed range")
	}
	if _, _, err := ParseRange("2024-02-01"); err == nil {
		t.Errorf("expected error for missing separator")
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 1 {
		t.Errorf("got %d want 1", got)
	}
	if got := DaysBetween(day("2024-12-31"), day("2024-01-01")); got != 365 {
		t.Errorf("got %d want 365", got)
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]time.Time{day("2024-01-03"), day("2024-01-01"), day("2024-01-03")})
	if len(got) != 2 || !got[0].Equal(day("2024-01-01")) {
		t.Errorf("got %v", got)
	}
}
