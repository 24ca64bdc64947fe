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


package fits

import "github.com/mlnoga/geofuse/internal/raster"

// Suffixes handled by the FITS codec
var Suffixes = []string{".fits", ".fit", ".fts", ".fits.gz", ".fit.gz", ".fts.gz", ".fits.gzip"}

// Raster codec for FITS files
type Codec struct{}

func (Codec) Name() string { return "FITS" }

func (Codec) ReadFile(fileName string) (*raster.Raster, error) { return ReadFile(fileName) }

func (Codec) WriteFile(fileName string, r *raster.Raster) error { return WriteFile(fileName, r) }

// Registers the FITS codec with the given store
func Register(s *raster.SuffixStore) {
	s.Register(Codec{}, Suffixes...)
}
