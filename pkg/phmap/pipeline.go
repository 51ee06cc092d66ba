package phmap

// Pipeline converts channel images into pH images. It holds no state
// between calls. The zero value only treats channel B values <= 0 as
// background; NewPipeline uses DefaultEpsilon.
type Pipeline struct {
	RatioComputer
}

func NewPipeline() Pipeline {
	return Pipeline{RatioComputer: NewRatioComputer()}
}

// Convert computes a/b for every pixel and pushes it through the model.
// The output is the same size as the inputs; pixels with an undefined
// ratio are the sentinel in the output too.
func (p Pipeline) Convert(a, b ChannelImage, m CalibrationModel) (PHImage, error) {
	if !m.Resolved() {
		return PHImage{}, ErrUnresolvedCalibration
	}

	ratio, err := p.Compute(a, b)
	if err != nil {
		return PHImage{}, err
	}

	return p.apply(ratio, m), nil
}

// ConvertRatio is Convert, for a ratio image that was computed elsewhere.
func (p Pipeline) ConvertRatio(ratio RatioImage, m CalibrationModel) (PHImage, error) {
	if !m.Resolved() {
		return PHImage{}, ErrUnresolvedCalibration
	}
	return p.apply(ratio, m), nil
}

func (p Pipeline) apply(ratio RatioImage, m CalibrationModel) PHImage {
	out := PHImage{ratio.NewFromThis()}
	forEachRow(p.Workers, ratio.Dy(), func(y int) {
		in, row := ratio.Row(y), out.Row(y)
		for x, r := range in {
			row[x] = m.eval(r)
		}
	})
	return out
}
