package session

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"

	"github.com/abworrall/ratio-ph/pkg/emath"
	"github.com/abworrall/ratio-ph/pkg/phmap"
)

// OutputPrefix is put on the front of every file we write; files that
// already carry it are never picked up as inputs.
const OutputPrefix = "pH_"

// LoadFilesAndDirs walks the args, recursing into dirs. A .yaml file
// becomes the base config; anything else is a candidate input, filtered
// and paired later by PairInputs.
func (s *Session) LoadFilesAndDirs(args ...string) error {
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {
		case err != nil:
			return fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			contents, err := os.ReadDir(arg)
			if err != nil {
				return fmt.Errorf("readdir %s: %v", arg, err)
			}
			for _, content := range contents {
				if err := s.LoadFilesAndDirs(filepath.Join(arg, content.Name())); err != nil {
					return fmt.Errorf("load %s: %v", arg, err)
				}
			}

		default:
			if err := s.loadFile(arg); err != nil {
				return fmt.Errorf("loadfile %s: %v", arg, err)
			}
		}
	}

	return nil
}

func (s *Session) loadFile(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if strings.HasPrefix(filepath.Base(filename), OutputPrefix) {
			return nil // one of our sidecars
		}
		cfg, err := loadConfig(filename)
		if err != nil {
			return fmt.Errorf("loading %s as config YAML failed: %v", filename, err)
		}
		s.Config = cfg
		s.Log.WithField("file", filename).Info("loaded base configuration")

	default:
		s.candidates = append(s.candidates, filename)
	}

	return nil
}

// PairInputs turns the candidate files into units of work. Files with the
// wrong extension, or that we wrote, are ignored. A file whose stem ends
// in one channel suffix is paired with the file whose stem ends in the
// other; anything else with the right extension is a ratio image.
// Explicit pairs from the config come first.
func (s *Session) PairInputs() []InputPair {
	type halves struct{ a, b string }
	channels := map[string]*halves{}
	ratios := []InputPair{}

	want := "." + strings.ToLower(strings.TrimPrefix(s.Extension, "."))

	for _, f := range s.candidates {
		base := filepath.Base(f)
		ext := filepath.Ext(base)
		if strings.ToLower(ext) != want || strings.HasPrefix(base, OutputPrefix) {
			continue
		}
		stem := strings.TrimSuffix(base, ext)
		key := func(suffix string) string { return filepath.Join(filepath.Dir(f), strings.TrimSuffix(stem, suffix)) }

		switch {
		case strings.HasSuffix(stem, s.ChannelASuffix):
			k := key(s.ChannelASuffix)
			if channels[k] == nil {
				channels[k] = &halves{}
			}
			channels[k].a = f
		case strings.HasSuffix(stem, s.ChannelBSuffix):
			k := key(s.ChannelBSuffix)
			if channels[k] == nil {
				channels[k] = &halves{}
			}
			channels[k].b = f
		default:
			ratios = append(ratios, InputPair{Name: stem, Ratio: f})
		}
	}

	pairs := []InputPair{}
	for k, h := range channels {
		if h.a == "" || h.b == "" {
			s.Log.WithFields(logrus.Fields{"stem": k, "a": h.a, "b": h.b}).Warn("unpaired channel image, skipping")
			continue
		}
		pairs = append(pairs, InputPair{Name: filepath.Base(k), ChannelA: h.a, ChannelB: h.b})
	}
	pairs = append(pairs, ratios...)
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].ChannelA+pairs[i].Ratio < pairs[j].ChannelA+pairs[j].Ratio
	})

	return append(append([]InputPair{}, s.Pairs...), pairs...)
}

// A LoadedImage is a single-plane image read from disk.
type LoadedImage struct {
	Filename    string
	Description string // TIFF ImageDescription, if any
	Grid        emath.FloatGrid
}

func (li LoadedImage) String() string {
	return fmt.Sprintf("%s %dx%d", filepath.Base(li.Filename), li.Grid.Dx(), li.Grid.Dy())
}

// LoadImage reads a TIFF or Radiance HDR file into a grid of float64.
// Grayscale TIFFs keep their raw 8 or 16 bit intensities; anything else
// is converted to 16 bit gray first. HDR files give the mean of R, G & B.
//
// Float TIFFs (as ImageJ saves a 32-bit ratio image) can't be decoded;
// save those as .hdr instead.
func LoadImage(filename string) (LoadedImage, error) {
	li := LoadedImage{Filename: filename}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		li.Description = tiffDescription(filename)

		reader, err := os.Open(filename)
		if err != nil {
			return li, fmt.Errorf("open+r img '%s': %v", filename, err)
		}
		defer reader.Close()

		img, err := tiff.Decode(reader)
		if err != nil {
			return li, fmt.Errorf("tiff loading '%s': %v", filename, err)
		}
		li.Grid = gridFromImage(img)

	case ".hdr":
		reader, err := os.Open(filename)
		if err != nil {
			return li, fmt.Errorf("open+r img '%s': %v", filename, err)
		}
		defer reader.Close()

		img, err := rgbe.Decode(reader)
		if err != nil {
			return li, fmt.Errorf("rgbe loading '%s': %v", filename, err)
		}
		hdrImg, ok := img.(hdr.Image)
		if !ok {
			return li, fmt.Errorf("rgbe loading '%s': not an HDR image (%T)", filename, img)
		}
		li.Grid = gridFromHDR(hdrImg)

	default:
		return li, fmt.Errorf("load '%s': unsupported image type", filename)
	}

	return li, nil
}

func LoadChannel(filename string) (phmap.ChannelImage, error) {
	li, err := LoadImage(filename)
	if err != nil {
		return phmap.ChannelImage{}, err
	}
	return phmap.NewChannelImage(li.Grid), nil
}

func LoadRatio(filename string) (phmap.RatioImage, error) {
	li, err := LoadImage(filename)
	if err != nil {
		return phmap.RatioImage{}, err
	}
	return phmap.RatioImageFrom(li.Grid), nil
}

// tiffDescription digs out the ImageDescription tag, where ImageJ and
// most acquisition software leave their notes. Plenty of files have no
// EXIF at all, so failure just means no description.
func tiffDescription(filename string) string {
	reader, err := os.Open(filename)
	if err != nil {
		return ""
	}
	defer reader.Close()

	ex, err := exif.Decode(reader)
	if err != nil {
		return ""
	}
	tag, err := ex.Get(exif.ImageDescription)
	if err != nil {
		return ""
	}
	desc, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(desc)
}

func gridFromImage(img image.Image) emath.FloatGrid {
	b := img.Bounds()
	g := emath.NewFloatGrid(b.Dx(), b.Dy())

	for y := 0; y < b.Dy(); y++ {
		row := g.Row(y)
		for x := range row {
			px, py := b.Min.X+x, b.Min.Y+y
			switch im := img.(type) {
			case *image.Gray16:
				row[x] = float64(im.Gray16At(px, py).Y)
			case *image.Gray:
				row[x] = float64(im.GrayAt(px, py).Y)
			default:
				row[x] = float64(color.Gray16Model.Convert(img.At(px, py)).(color.Gray16).Y)
			}
		}
	}
	return g
}

func gridFromHDR(img hdr.Image) emath.FloatGrid {
	b := img.Bounds()
	g := emath.NewFloatGrid(b.Dx(), b.Dy())

	for y := 0; y < b.Dy(); y++ {
		row := g.Row(y)
		for x := range row {
			r, gg, bb, _ := img.HDRAt(b.Min.X+x, b.Min.Y+y).HDRRGBA()
			row[x] = (r + gg + bb) / 3.0
		}
	}
	return g
}
