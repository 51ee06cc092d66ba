package session

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/abworrall/ratio-ph/pkg/emath"
	"github.com/abworrall/ratio-ph/pkg/phmap"
)

// writeTIFF saves a w x h 16 bit gray image where every pixel is v, except
// any listed in zeros.
func writeTIFF(t *testing.T, filename string, w, h int, v uint16, zeros ...image.Point) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	for _, pt := range zeros {
		img.SetGray16(pt.X, pt.Y, color.Gray16{})
	}

	f, err := os.Create(filename)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, tiff.Encode(f, img, nil))
}

func newTestSession(t *testing.T) (*Session, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return NewSession(log), hook
}

func TestLoadImage_TIFF(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "x_465.tif")
	writeTIFF(t, fn, 4, 3, 1200, image.Pt(1, 2))

	li, err := LoadImage(fn)
	require.NoError(t, err)
	assert.Equal(t, 4, li.Grid.Dx())
	assert.Equal(t, 3, li.Grid.Dy())
	assert.Equal(t, 1200.0, li.Grid.Get(0, 0))
	assert.Equal(t, 0.0, li.Grid.Get(1, 2))
}

func TestLoadImage_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadImage(filepath.Join(dir, "missing.tif"))
	assert.Error(t, err)

	junk := filepath.Join(dir, "junk.tif")
	require.NoError(t, os.WriteFile(junk, []byte("not a tiff"), 0644))
	_, err = LoadImage(junk)
	assert.Error(t, err)

	_, err = LoadImage(filepath.Join(dir, "x.jpg"))
	assert.Error(t, err)
}

func TestPairInputs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	for _, fn := range []string{
		filepath.Join(dir, "root_465.tif"),
		filepath.Join(dir, "root_405.TIF"),
		filepath.Join(sub, "deep_465.tif"),
		filepath.Join(sub, "deep_405.tif"),
		filepath.Join(sub, "lonely_465.tif"),
		filepath.Join(dir, "ratio.tif"),
		filepath.Join(dir, "pH_ratio.tif"),
		filepath.Join(dir, "notes.txt"),
	} {
		writeTIFF(t, fn, 2, 2, 10)
	}

	s, hook := newTestSession(t)
	require.NoError(t, s.LoadFilesAndDirs(dir))
	pairs := s.PairInputs()

	require.Len(t, pairs, 3)
	names := []string{}
	for _, p := range pairs {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"root", "deep", "ratio"}, names)

	for _, p := range pairs {
		switch p.Name {
		case "root":
			assert.Equal(t, filepath.Join(dir, "root_465.tif"), p.ChannelA)
			assert.Equal(t, filepath.Join(dir, "root_405.TIF"), p.ChannelB)
		case "ratio":
			assert.Equal(t, filepath.Join(dir, "ratio.tif"), p.Ratio)
		}
	}

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["a"] == filepath.Join(sub, "lonely_465.tif") {
			warned = true
		}
	}
	assert.True(t, warned, "unpaired channel should be reported")
}

func TestLoadFilesAndDirs_ConfigAndMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("lut: Fire\ncalibration:\n  mode: manual\n  coefficients: [1, 2]\n"), 0644))

	s, _ := newTestSession(t)
	require.NoError(t, s.LoadFilesAndDirs(cfg))
	assert.Equal(t, "Fire", s.LUT)
	assert.Equal(t, ModeManual, s.Calibration.Mode)

	assert.Error(t, s.LoadFilesAndDirs(filepath.Join(dir, "nope")))
}

func TestRun_ManualEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeTIFF(t, filepath.Join(dir, "leaf_465.tif"), 5, 4, 800)
	writeTIFF(t, filepath.Join(dir, "leaf_405.tif"), 5, 4, 200, image.Pt(0, 0))

	s, _ := newTestSession(t)
	s.Calibration = CalibrationConfig{Mode: ModeManual, Coefficients: []float64{1.0, 0.5}}
	s.Display = nil
	require.NoError(t, s.LoadFilesAndDirs(dir))

	results, err := s.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, phmap.DisplayRange{Min: 3, Max: 3}, res.Range)

	for _, fn := range []string{res.Outputs.HDR, res.Outputs.Sidecar, res.Outputs.Preview} {
		assert.FileExists(t, fn)
	}
	assert.Equal(t, filepath.Join(dir, "pH_leaf.hdr"), res.Outputs.HDR)

	// RGBE keeps about 8 bits of mantissa
	li, err := LoadImage(res.Outputs.HDR)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, li.Grid.Get(2, 2), 0.02)
	assert.Equal(t, 0.0, li.Grid.Get(0, 0))

	sc, err := ReadSidecar(res.Outputs.Sidecar)
	require.NoError(t, err)
	assert.Equal(t, 5, sc.Width)
	assert.Equal(t, 4, sc.Height)
	assert.Equal(t, 1, sc.UndefinedPixels)
	assert.Equal(t, "manual", sc.Calibration.Mode)
	assert.Equal(t, []float64{1.0, 0.5}, sc.Calibration.Coefficients)
	assert.Nil(t, sc.Calibration.Window)

	// a second run doesn't pick up its own outputs
	s2, _ := newTestSession(t)
	s2.Extension = "hdr"
	require.NoError(t, s2.LoadFilesAndDirs(dir))
	assert.Empty(t, s2.PairInputs())
}

func TestRun_WindowFromReferences(t *testing.T) {
	dir := t.TempDir()
	refs := filepath.Join(dir, "refs")
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	for _, d := range []string{refs, in, out} {
		require.NoError(t, os.Mkdir(d, 0755))
	}

	writeTIFF(t, filepath.Join(refs, "low_a.tif"), 3, 3, 100)
	writeTIFF(t, filepath.Join(refs, "low_b.tif"), 3, 3, 100)
	writeTIFF(t, filepath.Join(refs, "high_a.tif"), 3, 3, 300)
	writeTIFF(t, filepath.Join(refs, "high_b.tif"), 3, 3, 100)
	writeTIFF(t, filepath.Join(in, "root_465.tif"), 3, 3, 300)
	writeTIFF(t, filepath.Join(in, "root_405.tif"), 3, 3, 100)

	s, hook := newTestSession(t)
	s.OutputDir = out
	s.LUT = "no such thing"
	s.Calibration = CalibrationConfig{
		Mode:           ModeWindow,
		LowerReference: &ReferenceConfig{ChannelA: filepath.Join(refs, "low_a.tif"), ChannelB: filepath.Join(refs, "low_b.tif"), PH: 5},
		UpperReference: &ReferenceConfig{ChannelA: filepath.Join(refs, "high_a.tif"), ChannelB: filepath.Join(refs, "high_b.tif"), PH: 7},
	}
	require.NoError(t, s.LoadFilesAndDirs(in))

	results, err := s.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, filepath.Join(out, "pH_root.hdr"), results[0].Outputs.HDR)

	sc, err := ReadSidecar(results[0].Outputs.Sidecar)
	require.NoError(t, err)
	assert.Equal(t, "Green Fire Blue", sc.LUT)
	assert.Equal(t, phmap.DisplayRange{Min: 5, Max: 7}, sc.Display)
	require.NotNil(t, sc.Calibration.Window)
	assert.InDelta(t, 1.0, sc.Calibration.Window.Lower, 1e-9)
	assert.InDelta(t, 3.0, sc.Calibration.Window.Upper, 1e-9)

	// ratio 3 sits at the top of the window
	li, err := LoadImage(results[0].Outputs.HDR)
	require.NoError(t, err)
	assert.InDelta(t, 5.0497+4.2768-5.7843+3.4347, li.Grid.Get(1, 1), 0.05)

	msgs := []string{}
	for _, e := range hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, "LUT not found, falling back")
	assert.Contains(t, msgs, "mean ratio 1.000000")
	assert.Contains(t, msgs, "mean ratio 3.000000")
}

func TestRun_FailingInputIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeTIFF(t, filepath.Join(dir, "good_465.tif"), 3, 3, 40)
	writeTIFF(t, filepath.Join(dir, "good_405.tif"), 3, 3, 20)
	writeTIFF(t, filepath.Join(dir, "bad_465.tif"), 3, 3, 40)
	writeTIFF(t, filepath.Join(dir, "bad_405.tif"), 3, 2, 20)

	s, _ := newTestSession(t)
	s.Calibration = CalibrationConfig{Mode: ModeManual, Coefficients: []float64{4, 1}}
	require.NoError(t, s.LoadFilesAndDirs(dir))

	results, err := s.Run()
	assert.ErrorIs(t, err, ErrInputsFailed)
	require.Len(t, results, 2)

	for _, res := range results {
		switch res.Input.Name {
		case "bad":
			assert.ErrorIs(t, res.Err, phmap.ErrDimensionMismatch)
			assert.NoFileExists(t, filepath.Join(dir, "pH_bad.hdr"))
		case "good":
			assert.NoError(t, res.Err)
			assert.FileExists(t, res.Outputs.HDR)
		}
	}
}

func TestRun_BadCalibrationStopsEarly(t *testing.T) {
	dir := t.TempDir()
	writeTIFF(t, filepath.Join(dir, "a_465.tif"), 2, 2, 40)
	writeTIFF(t, filepath.Join(dir, "a_405.tif"), 2, 2, 20)
	writeTIFF(t, filepath.Join(dir, "same_a.tif"), 2, 2, 40)
	writeTIFF(t, filepath.Join(dir, "same_b.tif"), 2, 2, 20)

	s, _ := newTestSession(t)
	s.Extension = "nothing"
	s.Calibration = CalibrationConfig{
		Mode:           ModeImages,
		LowerReference: &ReferenceConfig{ChannelA: filepath.Join(dir, "same_a.tif"), ChannelB: filepath.Join(dir, "same_b.tif"), PH: 5},
		UpperReference: &ReferenceConfig{ChannelA: filepath.Join(dir, "a_465.tif"), ChannelB: filepath.Join(dir, "a_405.tif"), PH: 7},
	}

	_, err := s.Run()
	assert.ErrorIs(t, err, phmap.ErrDegenerateCalibration)

	s.Calibration = CalibrationConfig{Mode: ModeManual}
	_, err = s.Run()
	assert.ErrorIs(t, err, phmap.ErrInvalidCalibration)
}

// writeRatioHDR saves rows as a gray .hdr, the way a ratio image computed
// elsewhere would arrive.
func writeRatioHDR(t *testing.T, filename string, rows [][]float64) {
	t.Helper()
	g, err := emath.NewFloatGridFromRows(rows)
	require.NoError(t, err)
	po, err := phmap.Package(phmap.PHImage{FloatGrid: g}, nil)
	require.NoError(t, err)
	require.NoError(t, WriteHDR(po, filename))
}

func logMessages(hook *logtest.Hook) []string {
	msgs := []string{}
	for _, e := range hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

func TestRun_ImagesMode(t *testing.T) {
	dir := t.TempDir()
	refs := filepath.Join(dir, "refs")
	require.NoError(t, os.Mkdir(refs, 0755))

	writeTIFF(t, filepath.Join(refs, "low_a.tif"), 3, 3, 100)
	writeTIFF(t, filepath.Join(refs, "low_b.tif"), 3, 3, 100, image.Pt(0, 0))
	writeTIFF(t, filepath.Join(refs, "high_a.tif"), 3, 3, 300)
	writeTIFF(t, filepath.Join(refs, "high_b.tif"), 3, 3, 100)
	writeTIFF(t, filepath.Join(dir, "cell_465.tif"), 3, 3, 200)
	writeTIFF(t, filepath.Join(dir, "cell_405.tif"), 3, 3, 100)

	s, hook := newTestSession(t)
	s.Calibration = CalibrationConfig{
		Mode:           ModeImages,
		LowerReference: &ReferenceConfig{ChannelA: filepath.Join(refs, "low_a.tif"), ChannelB: filepath.Join(refs, "low_b.tif"), PH: 5},
		UpperReference: &ReferenceConfig{ChannelA: filepath.Join(refs, "high_a.tif"), ChannelB: filepath.Join(refs, "high_b.tif"), PH: 7},
	}
	require.NoError(t, s.LoadFilesAndDirs(filepath.Join(dir, "cell_465.tif"), filepath.Join(dir, "cell_405.tif")))

	results, err := s.Run()
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	sc, err := ReadSidecar(results[0].Outputs.Sidecar)
	require.NoError(t, err)
	assert.Equal(t, "image-means", sc.Calibration.Mode)
	require.Len(t, sc.Calibration.Coefficients, 2)
	assert.InDelta(t, 4.0, sc.Calibration.Coefficients[0], 1e-9)
	assert.InDelta(t, 1.0, sc.Calibration.Coefficients[1], 1e-9)

	// ratio 2 sits halfway between the references
	li, err := LoadImage(results[0].Outputs.HDR)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, li.Grid.Get(1, 1), 0.03)

	msgs := logMessages(hook)
	assert.Contains(t, msgs, "mean ratio 1.000000")
	assert.Contains(t, msgs, "mean ratio 3.000000")
}

func TestRun_RatioImageReferences(t *testing.T) {
	dir := t.TempDir()
	refs := filepath.Join(dir, "refs")
	in := filepath.Join(dir, "in")
	for _, d := range []string{refs, in} {
		require.NoError(t, os.Mkdir(d, 0755))
	}

	// the 0 is background, and must not drag the mean down
	writeRatioHDR(t, filepath.Join(refs, "low.hdr"), [][]float64{{1, 1, 0}})
	writeRatioHDR(t, filepath.Join(refs, "high.hdr"), [][]float64{{3, 3, 3}})
	writeRatioHDR(t, filepath.Join(in, "cell.hdr"), [][]float64{{2, 2, 0}})

	for _, mode := range []string{ModeImages, ModeWindow} {
		t.Run(mode, func(t *testing.T) {
			out := filepath.Join(dir, "out-"+mode)
			require.NoError(t, os.Mkdir(out, 0755))

			s, hook := newTestSession(t)
			s.Extension = "hdr"
			s.OutputDir = out
			s.Calibration = CalibrationConfig{
				Mode:           mode,
				LowerReference: &ReferenceConfig{Ratio: filepath.Join(refs, "low.hdr"), PH: 5},
				UpperReference: &ReferenceConfig{Ratio: filepath.Join(refs, "high.hdr"), PH: 7},
			}
			require.NoError(t, s.LoadFilesAndDirs(in))

			results, err := s.Run()
			require.NoError(t, err)
			require.Len(t, results, 1)
			require.NoError(t, results[0].Err)
			assert.Equal(t, filepath.Join(out, "pH_cell.hdr"), results[0].Outputs.HDR)

			li, err := LoadImage(results[0].Outputs.HDR)
			require.NoError(t, err)
			want := 6.0
			if mode == ModeWindow {
				want = 5.0497 + 4.2768*0.5 - 5.7843*0.25 + 3.4347*0.125
			}
			assert.InDelta(t, want, li.Grid.Get(0, 0), 0.04)
			assert.Equal(t, 0.0, li.Grid.Get(2, 0))

			msgs := logMessages(hook)
			assert.Contains(t, msgs, "mean ratio 1.000000")
			assert.Contains(t, msgs, "mean ratio 3.000000")
		})
	}
}

func TestRun_EmptyRatioReference(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.hdr")
	writeRatioHDR(t, filepath.Join(dir, "high.hdr"), [][]float64{{3, 3}})

	// all background
	g := emath.NewFloatGrid(2, 1)
	require.NoError(t, WriteHDR(phmap.PackagedOutput{PH: phmap.PHImage{FloatGrid: g}, Range: phmap.DisplayRange{Min: 0, Max: 1}}, empty))

	s, _ := newTestSession(t)
	s.Calibration = CalibrationConfig{
		Mode:           ModeImages,
		LowerReference: &ReferenceConfig{Ratio: empty, PH: 5},
		UpperReference: &ReferenceConfig{Ratio: filepath.Join(dir, "high.hdr"), PH: 7},
	}
	_, err := s.Run()
	assert.ErrorIs(t, err, phmap.ErrEmptyReferenceRegion)
}

func TestDisplayRange_PercentilesWin(t *testing.T) {
	c, err := newConfigFromYaml([]byte("displaypercentiles: [0, 100]\ncalibration: {mode: manual, coefficients: [4, 1]}\n"))
	require.NoError(t, err)
	require.NoError(t, c.FinalizeConfig())
	require.NotNil(t, c.Display, "the default fixed range is still there")

	g, err := emath.NewFloatGridFromRows([][]float64{{6.0, 6.5, 6.25}})
	require.NoError(t, err)

	s, _ := newTestSession(t)
	s.Config = c
	dr, err := s.displayRange(phmap.PHImage{FloatGrid: g})
	require.NoError(t, err)
	require.NotNil(t, dr)
	assert.InDelta(t, 6.0, dr.Min, 0.002)
	assert.InDelta(t, 6.5, dr.Max, 0.002)

	s.DisplayPercentiles = nil
	dr, err = s.displayRange(phmap.PHImage{FloatGrid: g})
	require.NoError(t, err)
	assert.Equal(t, &phmap.DisplayRange{Min: 5, Max: 7}, dr)
}

func TestRun_VerboseLogsPercentileRange(t *testing.T) {
	dir := t.TempDir()
	writeTIFF(t, filepath.Join(dir, "v_465.tif"), 4, 4, 400)
	writeTIFF(t, filepath.Join(dir, "v_405.tif"), 4, 4, 200)

	s, hook := newTestSession(t)
	s.Verbosity = 1
	s.Calibration = CalibrationConfig{Mode: ModeManual, Coefficients: []float64{4, 1}}
	require.NoError(t, s.LoadFilesAndDirs(dir))

	_, err := s.Run()
	require.NoError(t, err)

	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.DebugLevel && strings.Contains(e.Message, "1%..99% [6.000, 6.000]") {
			found = true
		}
	}
	assert.True(t, found, "verbose run should log the 1..99 percentile range")
}
