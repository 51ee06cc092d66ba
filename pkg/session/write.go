package session

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/mdouchement/hdr/codec/rgbe"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/ratio-ph/pkg/ecolor"
	"github.com/abworrall/ratio-ph/pkg/phmap"
)

// Sidecar is the metadata written next to each pH map. The .hdr format
// has nowhere to put it, nor any way to store NaN.
type Sidecar struct {
	Source          string
	Width           int
	Height          int
	UndefinedPixels int // stored as 0.0 in the .hdr
	Display         phmap.DisplayRange
	LUT             string
	Calibration     SidecarCalibration
}

type SidecarCalibration struct {
	Mode         string
	Model        string
	Coefficients []float64
	Window       *phmap.RatioWindow `yaml:",omitempty"`
}

// OutputFiles names everything written for one input.
type OutputFiles struct {
	HDR     string
	Sidecar string
	Preview string
}

func outputFiles(dir, name string) OutputFiles {
	base := filepath.Join(dir, OutputPrefix+name)
	return OutputFiles{HDR: base + ".hdr", Sidecar: base + ".yaml", Preview: base + ".png"}
}

func NewSidecar(source string, po phmap.PackagedOutput, lut ecolor.LUT, m phmap.CalibrationModel) Sidecar {
	sc := Sidecar{
		Source:          source,
		Width:           po.PH.Dx(),
		Height:          po.PH.Dy(),
		UndefinedPixels: po.PH.CountNaN(),
		Display:         po.Range,
		LUT:             lut.Name,
		Calibration: SidecarCalibration{
			Mode:         m.Mode().String(),
			Model:        m.String(),
			Coefficients: m.Coefficients(),
		},
	}
	if w, ok := m.Window(); ok {
		sc.Calibration.Window = &w
	}
	return sc
}

// WriteOutputs saves the pH map as Radiance HDR (float values, gray),
// its sidecar, and a pseudocolored preview with a calibration bar.
func WriteOutputs(of OutputFiles, po phmap.PackagedOutput, lut ecolor.LUT, sc Sidecar) error {
	if err := WriteHDR(po, of.HDR); err != nil {
		return err
	}

	b, err := yaml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("sidecar %s: %v", of.Sidecar, err)
	}
	if err := os.WriteFile(of.Sidecar, b, 0644); err != nil {
		return fmt.Errorf("sidecar %s: %v", of.Sidecar, err)
	}

	preview := ecolor.DrawCalibrationBar(ecolor.Render(po, lut), po.Range, lut)
	return WritePNG(preview, of.Preview)
}

func WriteHDR(po phmap.PackagedOutput, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer writer.Close()

	if err := rgbe.Encode(writer, po); err != nil {
		return fmt.Errorf("encoding RGBE file '%s': %v", filename, err)
	}
	return nil
}

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}

func ReadSidecar(filename string) (Sidecar, error) {
	sc := Sidecar{}
	b, err := os.ReadFile(filename)
	if err != nil {
		return sc, fmt.Errorf("sidecar read %s: %v", filename, err)
	}
	err = yaml.Unmarshal(b, &sc)
	return sc, err
}
