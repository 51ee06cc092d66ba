package emath

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
)

// A FloatGrid is a grid of floats, with some operations. NaN is used
// throughout as the "no value here" marker, and the stats functions
// skip it.
type FloatGrid struct {
	stride int
	values []float64
}

var ErrRaggedRows = errors.New("rows have differing lengths")

func NewFloatGrid(w, h int) FloatGrid {
	if w <= 0 || h <= 0 {
		return FloatGrid{}
	}
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFromRows copies a row-major slice of slices into a grid, so
// that rows[y][x] == g.Get(x,y).
func NewFloatGridFromRows(rows [][]float64) (FloatGrid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return FloatGrid{}, nil
	}
	g := NewFloatGrid(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != g.stride {
			return FloatGrid{}, fmt.Errorf("row %d has %d values, want %d: %w", y, len(row), g.stride, ErrRaggedRows)
		}
		copy(g.values[y*g.stride:], row)
	}
	return g, nil
}

func (g1 *FloatGrid) NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) Len() int                { return len(fg.values) }
func (fg *FloatGrid) Values() []float64       { return fg.values } // row-major, do not modify
func (fg *FloatGrid) Bounds() image.Rectangle { return image.Rect(0, 0, fg.Dx(), fg.Dy()) }

func (fg *FloatGrid) Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

// Row returns the backing slice for row y; writes go straight into the grid.
func (fg *FloatGrid) Row(y int) []float64 {
	return fg.values[y*fg.stride : (y+1)*fg.stride]
}

// SameSize is true if both grids have identical dimensions.
func (g1 *FloatGrid) SameSize(g2 *FloatGrid) bool {
	return g1.Dx() == g2.Dx() && g1.Dy() == g2.Dy()
}

func (g1 *FloatGrid) Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// ValidMean is the arithmetic mean of all non-NaN values, and how many
// values went into it.
func (fg *FloatGrid) ValidMean() (float64, int) {
	sum, n := 0.0, 0
	for _, v := range fg.values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sum / float64(n), n
}

// ValidMinMax returns the range of the non-NaN values; ok is false if
// there aren't any.
func (fg *FloatGrid) ValidMinMax() (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range fg.values {
		if math.IsNaN(v) {
			continue
		}
		ok = true
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if !ok {
		return math.NaN(), math.NaN(), false
	}
	return min, max, true
}

// CountNaN is how many cells hold no value.
func (fg *FloatGrid) CountNaN() int {
	n := 0
	for _, v := range fg.values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

func (fg *FloatGrid) Stats() string {
	min, max, _ := fg.ValidMinMax()
	mean, _ := fg.ValidMean()
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}, mean %f, %d NaN]", fg.Dx(), fg.Dy(), min, max, mean, fg.CountNaN())
}

// ToImg saves a simple grayscale, based on the range of values in the grid, and gamma scaling the
// gray to look normal for human vision. NaN cells come out red.
func (fg *FloatGrid) ToImg(title, filename string) error {
	min, max, ok := fg.ValidMinMax()
	if !ok || fg.Len() == 0 {
		return fmt.Errorf("ToImg %s: grid has no values", filename)
	}
	if max == min {
		max = min + 1
	}

	img := image.NewRGBA64(fg.Bounds())
	for x := 0; x < fg.Dx(); x++ {
		for y := 0; y < fg.Dy(); y++ {
			lum := fg.Get(x, y)
			if math.IsNaN(lum) {
				img.Set(x, y, color.RGBA64{0xFFFF, 0, 0, 0xFFFF})
				continue
			}
			gray := GammaExpand_F64((lum - min) / (max - min))
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
