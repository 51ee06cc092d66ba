package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/abworrall/ratio-ph/pkg/ecolor"
	"github.com/abworrall/ratio-ph/pkg/phmap"
	"github.com/abworrall/ratio-ph/pkg/session"
)

var (
	fVerbosity int
	fMode      string
	fCoeffs    string
	fLower     float64
	fUpper     float64
	fMin       float64
	fMax       float64
	fAutoRange bool
	fLUT       string
	fOutputDir string
	fExtension string
	fWorkers   int
	fEpsilon   float64
	fListLUTs  bool
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fMode, "mode", session.ModeWindow, "calibration mode: manual, images, window or fit (fit needs a yaml config)")
	flag.StringVar(&fCoeffs, "coeffs", "", "comma separated polynomial coefficients c0,c1,...")
	flag.Float64Var(&fLower, "lower", 0, "ratio at the low end of the window (window mode)")
	flag.Float64Var(&fUpper, "upper", 0, "ratio at the high end of the window (window mode)")
	flag.Float64Var(&fMin, "min", 5.0, "minimum pH for display")
	flag.Float64Var(&fMax, "max", 7.0, "maximum pH for display")
	flag.BoolVar(&fAutoRange, "autorange", false, "display over the min/max pH of each image")
	flag.StringVar(&fLUT, "lut", ecolor.DefaultLUT, "lookup table for previews: "+strings.Join(ecolor.ListLUTs(), ", "))
	flag.StringVar(&fOutputDir, "out", "", "output directory (default: next to each input)")
	flag.StringVar(&fExtension, "ext", "tif", "only process input files with this extension")
	flag.IntVar(&fWorkers, "workers", 0, "parallel workers per image (0: one per CPU)")
	flag.Float64Var(&fEpsilon, "epsilon", phmap.DefaultEpsilon, "channel B values below this are treated as background")
	flag.BoolVar(&fListLUTs, "listluts", false, "list the lookup tables and exit")
	flag.Parse()
}

func initLogger(verbosity int) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if verbosity > 0 {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

func parseCoeffs(s string) ([]float64, error) {
	coeffs := []float64{}
	for _, str := range strings.Split(s, ",") {
		c, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return nil, fmt.Errorf("coefficient '%s': %v", str, err)
		}
		coeffs = append(coeffs, c)
	}
	return coeffs, nil
}

// applyFlags overrides the (possibly yaml-loaded) config with any flags
// that were actually given on the command line.
func applyFlags(c *session.Config) error {
	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			c.Verbosity = fVerbosity
		case "mode":
			c.Calibration.Mode = fMode
		case "coeffs":
			c.Calibration.Coefficients, err = parseCoeffs(fCoeffs)
		case "lower":
			c.Calibration.LowerRatio = fLower
		case "upper":
			c.Calibration.UpperRatio = fUpper
		case "min", "max":
			c.Display = &phmap.DisplayRange{Min: fMin, Max: fMax}
			c.DisplayPercentiles = nil
		case "autorange":
			if fAutoRange {
				c.Display = nil
				c.DisplayPercentiles = nil
			}
		case "lut":
			c.LUT = fLUT
		case "out":
			c.OutputDir = fOutputDir
		case "ext":
			c.Extension = fExtension
		case "workers":
			c.Workers = fWorkers
		case "epsilon":
			c.Epsilon = fEpsilon
		}
	})
	return err
}

func main() {
	if fListLUTs {
		for _, name := range ecolor.ListLUTs() {
			fmt.Println(name)
		}
		return
	}

	log := initLogger(fVerbosity)
	log.Info("ratio-ph starting")

	s := session.NewSession(log)
	if err := s.LoadFilesAndDirs(flag.Args()...); err != nil {
		log.Fatal(err)
	}
	if err := applyFlags(&s.Config); err != nil {
		log.Fatal(err)
	}
	if s.OutputDir != "" {
		if err := os.MkdirAll(s.OutputDir, 0755); err != nil {
			log.Fatal(err)
		}
	}

	results, err := s.Run()
	if errors.Is(err, session.ErrInputsFailed) {
		log.WithField("processed", len(results)).Error(err)
		os.Exit(1)
	} else if err != nil {
		log.Fatal(err)
	}

	log.WithField("processed", len(results)).Info("all done")
}
