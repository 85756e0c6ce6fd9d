package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		n    int
		want Layout
	}{
		{0, Layout{}},
		{1, Layout{Rows: 1, Cols: 1}},
		{2, Layout{Rows: 1, Cols: 2}},
		{3, Layout{Rows: 1, Cols: 3}},
		{4, Layout{Rows: 2, Cols: 2}},
		{5, Layout{Rows: 2, Cols: 3}},
		{6, Layout{Rows: 2, Cols: 3}},
		{7, Layout{Rows: 3, Cols: 3}},
		{9, Layout{Rows: 3, Cols: 3}},
		{10, Layout{Rows: 3, Cols: 4}},
	}

	for _, tt := range tests {
		got := LayoutFor(tt.n)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
		assert.GreaterOrEqual(t, got.Cells(), tt.n)
	}
}
