package orchestrator

import "math"

// Layout is the terminal grid geometry
type Layout struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Cells returns the number of grid cells
func (l Layout) Cells() int {
	return l.Rows * l.Cols
}

var layouts = [...]Layout{
	1: {Rows: 1, Cols: 1},
	2: {Rows: 1, Cols: 2},
	3: {Rows: 1, Cols: 3},
	4: {Rows: 2, Cols: 2},
	5: {Rows: 2, Cols: 3},
	6: {Rows: 2, Cols: 3},
}

// LayoutFor returns the grid for n sessions. Counts above six only occur
// with a raised cap and get the smallest near-square grid.
func LayoutFor(n int) Layout {
	if n <= 0 {
		return Layout{}
	}
	if n < len(layouts) {
		return layouts[n]
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	return Layout{Rows: rows, Cols: cols}
}
