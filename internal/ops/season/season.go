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


// Package season assembles the stage operators into named pipelines.
package season

import (
	"fmt"
	"sort"

	"github.com/mlnoga/geofuse/internal/ops"
	"github.com/mlnoga/geofuse/internal/ops/fuse"
	"github.com/mlnoga/geofuse/internal/ops/index"
	"github.com/mlnoga/geofuse/internal/ops/post"
	"github.com/mlnoga/geofuse/internal/ops/pre"
)

// Pipeline names accepted by ByName
const (
	NDVI         = "ndvi"
	Clouds       = "clouds"
	PrepareS2    = "prepare-s2"
	PrepareS3    = "prepare-s3"
	Prepare      = "prepare"
	Fuse         = "fuse"
	Crop         = "crop"
	NDVIPrepared = "ndvi-prepared"
	Run          = "run"
)

var builders = map[string]func() *ops.OpSequence{
	NDVI: func() *ops.OpSequence {
		return ops.NewOpSequence(index.NewOpNDVIRaw(), index.NewOpTimeseries(index.SourceRaw))
	},
	Clouds:    func() *ops.OpSequence { return ops.NewOpSequence(index.NewOpClouds()) },
	PrepareS2: func() *ops.OpSequence { return ops.NewOpSequence(pre.NewOpPrepareS2()) },
	PrepareS3: func() *ops.OpSequence { return ops.NewOpSequence(pre.NewOpPrepareS3()) },
	Prepare: func() *ops.OpSequence {
		return ops.NewOpSequence(pre.NewOpPrepareS2(), pre.NewOpPrepareS3())
	},
	Fuse: func() *ops.OpSequence { return ops.NewOpSequence(fuse.NewOpFuse("")) },
	Crop: func() *ops.OpSequence { return ops.NewOpSequence(post.NewOpCrop()) },
	NDVIPrepared: func() *ops.OpSequence {
		return ops.NewOpSequence(index.NewOpNDVIPrepared(), index.NewOpTimeseries(index.SourcePrepared))
	},
	Run: Pipeline,
}

// The whole season: raw indices and series, cloud flags, preparation, fusion, crop,
// then prepared indices and series
func Pipeline() *ops.OpSequence {
	return ops.NewOpSequence(
		index.NewOpNDVIRaw(),
		index.NewOpTimeseries(index.SourceRaw),
		index.NewOpClouds(),
		pre.NewOpPrepareS2(),
		pre.NewOpPrepareS3(),
		fuse.NewOpFuse(""),
		post.NewOpCrop(),
		index.NewOpNDVIPrepared(),
		index.NewOpTimeseries(index.SourcePrepared),
	)
}

func ByName(name string) (*ops.OpSequence, error) {
	b, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline '%s', expected one of %v", name, Names())
	}
	return b(), nil
}

// Sorted pipeline names
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
