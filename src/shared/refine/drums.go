package refine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/audio/dsp"
	"golang.org/x/sync/errgroup"
)

const DrumsParent = "drums"

// Band is an inclusive frequency range in Hz.
type Band struct {
	Name string
	Low  float64
	High float64
}

func DefaultDrumBands() []Band {
	return []Band{
		{Name: "kick", Low: 20, High: 200},
		{Name: "snare", Low: 200, High: 2000},
		{Name: "hihat", Low: 2000, High: 8000},
		{Name: "cymbals", Low: 4000, High: 20000},
	}
}

var _ Refiner = DrumRefiner{}

// DrumRefiner isolates each band of a mono drum stem. Bands may overlap.
type DrumRefiner struct {
	Bands []Band
	STFT  dsp.STFT
}

func NewDrumRefiner() DrumRefiner {
	return DrumRefiner{
		Bands: DefaultDrumBands(),
		STFT:  dsp.NewSTFT(),
	}
}

func (DrumRefiner) Parent() string {
	return DrumsParent
}

func (d DrumRefiner) Parts() []string {
	names := make([]string, len(d.Bands))
	for i, band := range d.Bands {
		names[i] = band.Name
	}
	return names
}

func (d DrumRefiner) Refine(ctx context.Context, buffer audio.Buffer) ([]Part, error) {
	spec, err := d.STFT.Forward(ctx, buffer.Mono())
	if err != nil {
		return nil, errors.Wrap(err, "Failed to transform drums")
	}

	// spec is only read from here on
	parts := make([]Part, len(d.Bands))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, band := range d.Bands {
		i, band := i, band

		group.Go(func() error {
			mask := dsp.BandMask(spec, buffer.SampleRate, band.Low, band.High)

			rendered, err := dsp.Inverse(groupCtx, spec.Apply(mask))
			if err != nil {
				return errors.Wrapf(err, "Failed to render %s band", band.Name)
			}

			parts[i] = Part{
				Name:  band.Name,
				Audio: audio.NewMono(buffer.SampleRate, dsp.PeakNormalize(rendered)),
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return parts, nil
}
