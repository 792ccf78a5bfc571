package sim

import "sort"

const (
	SpatialCellSize = 50.0 // comfortably larger than the biggest ball (r=30)
	SpatialCols     = 16   // ceil(2*WallSize/SpatialCellSize) + 2 for overhang
	SpatialRows     = 16
)

// SpatialGrid is a fixed-size grid over the arena for broad-phase pair
// queries. Refs are indices into the caller's sorted body list.
type SpatialGrid struct {
	cells [SpatialCols * SpatialRows][]int
}

// Clear resets all cells (keeps allocated capacity)
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

func cellCoord(v float64, n int) int {
	c := int((v + WallSize) / SpatialCellSize)
	if c < 0 {
		return 0
	}
	if c >= n {
		return n - 1
	}
	return c
}

func cellRange(x, y, radius float64) (minCX, maxCX, minCY, maxCY int) {
	minCX = cellCoord(x-radius, SpatialCols)
	maxCX = cellCoord(x+radius, SpatialCols)
	minCY = cellCoord(y-radius, SpatialRows)
	maxCY = cellCoord(y+radius, SpatialRows)
	return
}

// InsertCircle adds ref to all cells overlapping the circle's bounding box
func (g *SpatialGrid) InsertCircle(x, y, radius float64, ref int) {
	minCX, maxCX, minCY, maxCY := cellRange(x, y, radius)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			idx := cy*SpatialCols + cx
			g.cells[idx] = append(g.cells[idx], ref)
		}
	}
}

// QueryBuf appends refs in cells overlapping the bounding box to buf.
// A ref may appear more than once.
func (g *SpatialGrid) QueryBuf(x, y, radius float64, buf []int) []int {
	minCX, maxCX, minCY, maxCY := cellRange(x, y, radius)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			buf = append(buf, g.cells[cy*SpatialCols+cx]...)
		}
	}
	return buf
}

// pair is a candidate body pair, I < J.
type pair struct{ I, J int }

// candidatePairs returns the deduplicated pairs whose bounding circles share
// a cell, sorted by (I, J) so resolution order only depends on body order.
func (g *SpatialGrid) candidatePairs(bodies []*Body) []pair {
	g.Clear()
	for i, b := range bodies {
		g.InsertCircle(b.Position.X, b.Position.Y, b.Collider.BoundingRadius(), i)
	}
	seen := make(map[pair]struct{})
	var out []pair
	var buf []int
	for i, b := range bodies {
		buf = g.QueryBuf(b.Position.X, b.Position.Y, b.Collider.BoundingRadius(), buf[:0])
		for _, j := range buf {
			if j <= i {
				continue
			}
			p := pair{i, j}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].I != out[b].I {
			return out[a].I < out[b].I
		}
		return out[a].J < out[b].J
	})
	return out
}
