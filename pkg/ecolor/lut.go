package ecolor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/ratio-ph/pkg/emath"
	"github.com/abworrall/ratio-ph/pkg/phmap"
)

// A LUT maps a value in [0,1] onto a display color, by blending between
// a few key colors. This is only ever used for previews; the pH data
// itself is never colored.
type LUT struct {
	Name  string
	stops []stop
	blend func(c1, c2 colorful.Color, t float64) colorful.Color
}

type stop struct {
	pos float64
	col colorful.Color
}

const (
	DefaultLUT  = "Green Fire Blue"
	FallbackLUT = "Fire"
)

func rgb(r, g, b float64) colorful.Color { return colorful.Color{R: r, G: g, B: b} }

func blendRgb(c1, c2 colorful.Color, t float64) colorful.Color { return c1.BlendRgb(c2, t) }
func blendLab(c1, c2 colorful.Color, t float64) colorful.Color { return c1.BlendLab(c2, t) }

func ramp(name string, blend func(c1, c2 colorful.Color, t float64) colorful.Color, cols ...colorful.Color) LUT {
	l := LUT{Name: name, blend: blend}
	for i, c := range cols {
		l.stops = append(l.stops, stop{pos: float64(i) / float64(len(cols)-1), col: c})
	}
	return l
}

func spectrum() LUT {
	l := LUT{Name: "Spectrum", blend: blendRgb}
	for i := 0; i <= 12; i++ {
		f := float64(i) / 12.0
		l.stops = append(l.stops, stop{pos: f, col: colorful.Hsv(f*300.0, 1, 1)})
	}
	return l
}

var luts = map[string]LUT{}

func init() {
	black := rgb(0, 0, 0)
	for _, l := range []LUT{
		ramp("Grays", blendRgb, black, rgb(1, 1, 1)),
		ramp("Fire", blendRgb, black, rgb(0.35, 0, 0.55), rgb(0.85, 0.05, 0.25), rgb(1, 0.55, 0), rgb(1, 0.95, 0.3), rgb(1, 1, 1)),
		ramp("Green Fire Blue", blendRgb, black, rgb(0, 0.2, 0.6), rgb(0, 0.55, 0.55), rgb(0.2, 0.8, 0.2), rgb(1, 0.85, 0), rgb(1, 1, 1)),
		ramp("Ice", blendRgb, rgb(0.1, 0.2, 0.4), rgb(0, 0.5, 0.75), rgb(0.4, 0.85, 0.95), rgb(0.95, 1, 1)),
		ramp("Thermal", blendRgb, black, rgb(0.3, 0, 0.6), rgb(0.85, 0.15, 0.35), rgb(1, 0.6, 0), rgb(1, 1, 0.6)),
		ramp("mpl-viridis", blendLab, rgb(0.267, 0.005, 0.329), rgb(0.231, 0.322, 0.545), rgb(0.129, 0.569, 0.549), rgb(0.369, 0.788, 0.384), rgb(0.993, 0.906, 0.144)),
		ramp("mpl-magma", blendLab, rgb(0.001, 0, 0.014), rgb(0.316, 0.071, 0.485), rgb(0.716, 0.215, 0.475), rgb(0.987, 0.535, 0.382), rgb(0.987, 0.991, 0.75)),
		ramp("Red", blendRgb, black, rgb(1, 0, 0)),
		ramp("Green", blendRgb, black, rgb(0, 1, 0)),
		ramp("Blue", blendRgb, black, rgb(0, 0, 1)),
		ramp("Cyan", blendRgb, black, rgb(0, 1, 1)),
		ramp("Magenta", blendRgb, black, rgb(1, 0, 1)),
		ramp("Yellow", blendRgb, black, rgb(1, 1, 0)),
		spectrum(),
	} {
		luts[l.Name] = l
	}
}

func ListLUTs() []string {
	names := []string{}
	for name := range luts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupLUT(name string) (LUT, bool) {
	l, ok := luts[name]
	return l, ok
}

// ResolveLUT finds the named LUT; if there isn't one, it falls back to
// DefaultLUT, and then FallbackLUT. The returned bool says a fallback happened.
func ResolveLUT(name string) (LUT, bool) {
	if l, ok := luts[name]; ok {
		return l, false
	}
	for _, fallback := range []string{DefaultLUT, FallbackLUT} {
		if l, ok := luts[fallback]; ok {
			return l, true
		}
	}
	return luts["Grays"], true
}

// At returns the color for f, which is clamped to [0,1].
func (l LUT) At(f float64) color.Color {
	f = emath.Clamp(f, 0, 1)
	i := sort.Search(len(l.stops), func(i int) bool { return l.stops[i].pos >= f })
	if i == 0 {
		return l.stops[0].col.Clamped()
	}
	s1, s2 := l.stops[i-1], l.stops[i]
	t := (f - s1.pos) / (s2.pos - s1.pos)
	return l.blend(s1.col, s2.col, t).Clamped()
}

func (l LUT) String() string { return fmt.Sprintf("LUT[%s, %d stops]", l.Name, len(l.stops)) }

// NaNColor is used for pixels that have no pH value.
var NaNColor = color.RGBA{0, 0, 0, 0xFF}

// Render pseudocolors the packaged pH image, stretching the LUT over its
// display range. Values outside the range take the end colors.
func Render(po phmap.PackagedOutput, l LUT) *image.RGBA {
	img := image.NewRGBA(po.Bounds())
	span := po.Range.Max - po.Range.Min

	for y := 0; y < po.PH.Dy(); y++ {
		for x, v := range po.PH.Row(y) {
			switch {
			case phmap.IsSentinel(v):
				img.Set(x, y, NaNColor)
			case span == 0 || math.IsInf(span, 0):
				img.Set(x, y, l.At(0.5))
			default:
				img.Set(x, y, l.At((v-po.Range.Min)/span))
			}
		}
	}
	return img
}
