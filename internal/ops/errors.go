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


package ops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/mlnoga/geofuse/internal/crop"
	"github.com/mlnoga/geofuse/internal/fusion"
	"github.com/mlnoga/geofuse/internal/reproject"
)

// True for errors confined to a single raster or date, which are logged and skipped
func IsPerDate(err error) bool {
	var re *reproject.ReprojectionError
	var ee *crop.EmptyIntersectionError
	var fe *fusion.FusionOperationError
	return errors.As(err, &re) || errors.As(err, &ee) || errors.As(err, &fe) || errors.Is(err, fs.ErrNotExist)
}

// Logs per-date errors with the given prefix and swallows them. Other errors are returned
func (c *Context) Isolate(prefix, what string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsPerDate(err) {
		fmt.Fprintf(c.Log, "[%s] Error processing %s: %s\n", prefix, what, err.Error())
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Lists files matching the pattern, minus those excluded by name
func (c *Context) Glob(pattern string, excluded func(name string) bool) ([]string, error) {
	matches, err := c.Store.Glob(pattern)
	if err != nil {
		return nil, err
	}
	res := matches[:0]
	for _, m := range matches {
		if excluded == nil || !excluded(filepath.Base(m)) {
			res = append(res, m)
		}
	}
	return res, nil
}
