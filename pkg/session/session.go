// Package session is the host side of the pH mapper: it reads config and
// images from disk, drives the phmap pipeline over each input, and writes
// the results.
package session

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/skypies/util/histogram"

	"github.com/abworrall/ratio-ph/pkg/ecolor"
	"github.com/abworrall/ratio-ph/pkg/phmap"
)

type Session struct {
	Config

	Log        logrus.FieldLogger
	candidates []string
}

func NewSession(log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{Config: NewConfig(), Log: log}
}

// A Result describes what happened to one input.
type Result struct {
	Input   InputPair
	Outputs OutputFiles
	Range   phmap.DisplayRange
	Err     error
}

// ErrInputsFailed is returned by Run if any input could not be converted.
var ErrInputsFailed = errors.New("some inputs failed")

// Run resolves the calibration, then converts every input. An input that
// fails is logged and skipped; the run then returns ErrInputsFailed,
// wrapped with the count. A bad config or calibration stops the run
// before any input is read.
func (s *Session) Run() ([]Result, error) {
	if err := s.FinalizeConfig(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if s.Verbosity > 0 {
		s.Log.Debugf("Final configuration:-\n\n%s\n", s.AsYaml())
	}

	model, err := s.BuildModel(s.Log)
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	s.Log.WithField("mode", s.Calibration.Mode).Infof("calibration resolved: %s", model)

	lut, fellBack := ecolor.ResolveLUT(s.LUT)
	if fellBack {
		s.Log.WithFields(logrus.Fields{"wanted": s.LUT, "using": lut.Name}).Warn("LUT not found, falling back")
	}

	inputs := s.PairInputs()
	if len(inputs) == 0 {
		s.Log.Warn("no inputs found")
	}

	results := []Result{}
	nFailed := 0
	for i, in := range inputs {
		log := s.Log.WithFields(logrus.Fields{"input": in.Name, "n": fmt.Sprintf("%d/%d", i+1, len(inputs))})
		log.Info("processing")

		res := s.convertOne(in, model, lut, log)
		if res.Err != nil {
			nFailed++
			log.WithError(res.Err).Error("skipping input")
		} else {
			log.WithFields(logrus.Fields{"output": res.Outputs.HDR, "range": res.Range.String()}).Info("written")
		}
		results = append(results, res)
	}

	if nFailed > 0 {
		return results, fmt.Errorf("%w: %d of %d", ErrInputsFailed, nFailed, len(inputs))
	}
	return results, nil
}

func (s *Session) convertOne(in InputPair, model phmap.CalibrationModel, lut ecolor.LUT, log logrus.FieldLogger) Result {
	res := Result{Input: in}
	pipeline := phmap.Pipeline{RatioComputer: s.RatioComputer()}

	var ratio phmap.RatioImage
	var source string
	if in.Ratio != "" {
		r, err := LoadRatio(in.Ratio)
		if err != nil {
			res.Err = err
			return res
		}
		ratio, source = r, in.Ratio
	} else {
		a, err := LoadChannel(in.ChannelA)
		if err != nil {
			res.Err = err
			return res
		}
		b, err := LoadChannel(in.ChannelB)
		if err != nil {
			res.Err = err
			return res
		}
		if ratio, err = pipeline.Compute(a, b); err != nil {
			res.Err = fmt.Errorf("%s: %w", in, err)
			return res
		}
		source = in.ChannelA
	}

	if mean, err := ratio.Mean(); err == nil {
		log.Infof("mean ratio %.6f", mean)
	}
	if s.Verbosity > 1 {
		dbg := filepath.Join(s.outputDir(source), OutputPrefix+in.Name+"-ratio-debug.png")
		if err := ratio.ToImg("ratio "+in.Name, dbg); err != nil {
			log.WithError(err).Debug("no ratio debug image")
		}
	}

	ph, err := pipeline.ConvertRatio(ratio, model)
	if err != nil {
		res.Err = err
		return res
	}

	dr, err := s.displayRange(ph)
	if err != nil {
		res.Err = err
		return res
	}
	po, err := phmap.Package(ph, dr)
	if err != nil {
		res.Err = err
		return res
	}
	res.Range = po.Range

	if s.Verbosity > 0 {
		h := PHHistogram(ph)
		if p, err := phmap.PercentileDisplayRange(ph, 1, 99); err == nil {
			log.Debugf("pH %s, 1%%..99%% %s\n%s", ph.Stats(), p, h.String())
		}
	}

	res.Outputs = outputFiles(s.outputDir(source), in.Name)
	if err := WriteOutputs(res.Outputs, po, lut, NewSidecar(source, po, lut, model)); err != nil {
		res.Err = err
	}
	return res
}

// displayRange picks the percentile range if configured, else the fixed
// range, else nil, which tells Package to use the min/max.
func (s *Session) displayRange(ph phmap.PHImage) (*phmap.DisplayRange, error) {
	if len(s.DisplayPercentiles) == 2 {
		dr, err := phmap.PercentileDisplayRange(ph, s.DisplayPercentiles[0], s.DisplayPercentiles[1])
		return &dr, err
	}
	return s.Display, nil
}

func (s *Session) outputDir(source string) string {
	if s.OutputDir != "" {
		return s.OutputDir
	}
	return filepath.Dir(source)
}

// PHHistogram buckets the defined pH values at 0.1 pH, over 0-14.
func PHHistogram(ph phmap.PHImage) histogram.Histogram {
	h := histogram.Histogram{NumBuckets: 140, ValMin: 0, ValMax: 1400}
	for _, v := range ph.Values() {
		if phmap.IsSentinel(v) || v < 0 || v >= 14 {
			continue
		}
		h.Add(histogram.ScalarVal(int(v * 100)))
	}
	return h
}
