package refine

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/audio/dsp"
)

const (
	VocalsParent = "vocals"
	LeadPart     = "lead"
	BackingPart  = "backing"
)

type VocalParams struct {
	CenterWeight   float64
	SpectralWeight float64
	CentroidSigma  float64
	HPSSKernel     int
	HPSSPower      float64
}

func DefaultVocalParams() VocalParams {
	return VocalParams{
		CenterWeight:   0.7,
		SpectralWeight: 0.3,
		CentroidSigma:  0.7,
		HPSSKernel:     dsp.DefaultHPSSKernel,
		HPSSPower:      dsp.DefaultHPSSPower,
	}
}

var _ Refiner = VocalRefiner{}

// VocalRefiner splits a vocal stem into lead and backing. Lead leans on the
// centre channel and frames with a typical spectral centroid; backing leans
// on the sides and the remaining frames. A mono stem has no sides, so its
// lead is the normalised input and its backing is silent.
type VocalRefiner struct {
	Params VocalParams
	STFT   dsp.STFT
}

func NewVocalRefiner() VocalRefiner {
	return VocalRefiner{
		Params: DefaultVocalParams(),
		STFT:   dsp.NewSTFT(),
	}
}

func (VocalRefiner) Parent() string {
	return VocalsParent
}

func (VocalRefiner) Parts() []string {
	return []string{LeadPart, BackingPart}
}

func (v VocalRefiner) Refine(ctx context.Context, buffer audio.Buffer) ([]Part, error) {
	left, right := buffer.Stereo()
	center, sides := dsp.MidSide(left, right)
	if isSilent(sides) {
		return []Part{
			{Name: LeadPart, Audio: audio.NewMono(buffer.SampleRate, dsp.PeakNormalize(center))},
			{Name: BackingPart, Audio: audio.NewMono(buffer.SampleRate, make([]float64, len(sides)))},
		}, nil
	}

	mono := buffer.Mono()

	spec, err := v.STFT.Forward(ctx, mono)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to transform vocals")
	}

	centroids := dsp.SpectralCentroid(spec, buffer.SampleRate)
	leadFrames := dsp.LeadFrames(centroids, v.Params.CentroidSigma)

	leadSpec, err := dsp.HarmonicHPSS(ctx, spec, dsp.HPSSParams{
		Kernel: v.Params.HPSSKernel,
		Power:  v.Params.HPSSPower,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to separate harmonic content")
	}
	dsp.KeepFrames(leadSpec, leadFrames, true)

	// spec is not read again, so backing reuses its frames
	backingSpec := spec
	dsp.KeepFrames(backingSpec, leadFrames, false)

	leadAudio, err := dsp.Inverse(ctx, leadSpec)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to render lead vocals")
	}

	backingAudio, err := dsp.Inverse(ctx, backingSpec)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to render backing vocals")
	}

	lead := dsp.PeakNormalize(dsp.Mix(v.Params.CenterWeight, center, v.Params.SpectralWeight, leadAudio))
	backing := dsp.PeakNormalize(dsp.Mix(v.Params.CenterWeight, sides, v.Params.SpectralWeight, backingAudio))

	return []Part{
		{Name: LeadPart, Audio: audio.NewMono(buffer.SampleRate, lead)},
		{Name: BackingPart, Audio: audio.NewMono(buffer.SampleRate, backing)},
	}, nil
}

const silenceThreshold = 1e-9

func isSilent(signal []float64) bool {
	for _, sample := range signal {
		if math.Abs(sample) > silenceThreshold {
			return false
		}
	}
	return true
}
