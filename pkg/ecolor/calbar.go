package ecolor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/abworrall/ratio-ph/pkg/phmap"
)

// CalibrationBar describes the color key drawn in the corner of a preview.
type CalibrationBar struct {
	NumLabels int     // how many pH values to print alongside the ramp
	Decimals  int     // digits after the decimal point
	Zoom      float64 // scales the whole bar
}

func NewCalibrationBar() CalibrationBar {
	return CalibrationBar{NumLabels: 5, Decimals: 3, Zoom: 1.0}
}

// Labels returns the pH values to print, top (max) to bottom (min).
func (cb CalibrationBar) Labels(dr phmap.DisplayRange) []string {
	n := cb.NumLabels
	if n < 2 {
		n = 2
	}
	labels := []string{}
	for i := 0; i < n; i++ {
		v := dr.Max - (dr.Max-dr.Min)*float64(i)/float64(n-1)
		labels = append(labels, fmt.Sprintf("%.*f", cb.Decimals, v))
	}
	return labels
}

// Draw overlays the bar in the upper right corner of img: a white box
// holding the LUT ramp (max at the top) with black labels to its left.
func (cb CalibrationBar) Draw(img image.Image, dr phmap.DisplayRange, l LUT) image.Image {
	dc := gg.NewContextForImage(img)
	labels := cb.Labels(dr)

	zoom := cb.Zoom
	if zoom <= 0 {
		zoom = 1.0
	}
	pad := 4.0 * zoom
	rampW := 12.0 * zoom
	rampH := float64(img.Bounds().Dy()) * 0.4
	if rampH < 40*zoom {
		rampH = 40 * zoom
	}

	labelW, labelH := 0.0, 0.0
	for _, s := range labels {
		w, h := dc.MeasureString(s)
		if w > labelW {
			labelW = w
		}
		labelH = h
	}

	boxW := pad + labelW + pad + rampW + pad
	boxH := pad + labelH/2 + rampH + labelH/2 + pad
	boxX := float64(img.Bounds().Max.X) - boxW - pad
	boxY := float64(img.Bounds().Min.Y) + pad

	dc.SetColor(color.White)
	dc.DrawRectangle(boxX, boxY, boxW, boxH)
	dc.Fill()

	rampX := boxX + pad + labelW + pad
	rampY := boxY + pad + labelH/2
	steps := int(rampH)
	for i := 0; i < steps; i++ {
		f := 1.0 - float64(i)/float64(steps-1)
		dc.SetColor(l.At(f))
		dc.DrawRectangle(rampX, rampY+float64(i), rampW, 1)
		dc.Fill()
	}

	dc.SetColor(color.Black)
	for i, s := range labels {
		y := rampY + rampH*float64(i)/float64(len(labels)-1)
		dc.DrawStringAnchored(s, rampX-pad, y, 1.0, 0.5)
	}

	return dc.Image()
}

// DrawCalibrationBar draws the default bar: five labels, three decimals.
func DrawCalibrationBar(img image.Image, dr phmap.DisplayRange, l LUT) image.Image {
	return NewCalibrationBar().Draw(img, dr, l)
}
