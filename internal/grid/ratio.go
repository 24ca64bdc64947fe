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

package grid

import (
	"fmt"
	"math"
)

// Default integer multiplier between fine and coarse grids, from a 300m coarse sensor
// and a ~14.3m fine target resolution
const DefaultRatio = 21

// The fixed integer multiplier between fine and coarse grid pixel dimensions
type Ratio int

// Validates the given ratio. Must be at least 1
func NewRatio(r int) (Ratio, error) {
	if r < 1 {
		return 0, fmt.Errorf("resolution ratio %d must be >= 1", r)
	}
	return Ratio(r), nil
}

// Validates a ratio coming from a configuration source which may carry fractions
func ParseRatio(r float64) (Ratio, error) {
	if math.IsNaN(r) || math.IsInf(r, 0) || r != math.Trunc(r) {
		return 0, fmt.Errorf("resolution ratio %g must be integral", r)
	}
	if r > math.MaxInt32 {
		return 0, fmt.Errorf("resolution ratio %g out of range", r)
	}
	return NewRatio(int(r))
}

// Returns the fine grid over the same bounds, with dimensions multiplied by the ratio
func (r Ratio) FineSize(coarse Grid) Grid {
	fine := coarse
	fine.Width, fine.Height = coarse.Width*int(r), coarse.Height*int(r)
	return fine
}

// Returns the coarse grid over the same bounds, with dimensions divided by the ratio, rounded down
func (r Ratio) CoarseSize(fine Grid) Grid {
	coarse := fine
	coarse.Width, coarse.Height = fine.Width/int(r), fine.Height/int(r)
	return coarse
}

// Returns the coarse resolution for a fine resolution
func (r Ratio) CoarseResolution(fine float64) float64 {
	return fine * float64(r)
}
