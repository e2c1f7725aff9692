package refine

import (
	"context"
	"strings"

	"github.com/apex/log"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/audio/dsp"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
)

const AnalysisWindowSeconds = 30

// Features summarise the opening of a stem.
type Features struct {
	Centroid         float64
	ZeroCrossingRate float64
}

// Label guesses the instrument from brightness and noisiness.
func (f Features) Label() string {
	switch {
	case f.Centroid > 3000:
		if f.ZeroCrossingRate > 0.1 {
			return "Vocals"
		}
		return "Synth/Keys"
	case f.Centroid > 1500:
		if f.ZeroCrossingRate > 0.15 {
			return "Guitar"
		}
		return "Piano"
	default:
		if f.ZeroCrossingRate > 0.1 {
			return "Bass"
		}
		return "Kick/Low End"
	}
}

type Analyzer struct {
	resolver stemresolver.Resolver
	codecs   audio.Codecs
	stft     dsp.STFT
}

func NewAnalyzer(resolver stemresolver.Resolver, codecs audio.Codecs) Analyzer {
	return Analyzer{
		resolver: resolver,
		codecs:   codecs,
		stft:     dsp.NewSTFT(),
	}
}

func (a Analyzer) Features(ctx context.Context, buffer audio.Buffer) (Features, error) {
	mono := buffer.Truncate(AnalysisWindowSeconds).Mono()

	spec, err := a.stft.Forward(ctx, mono)
	if err != nil {
		return Features{}, err
	}

	centroid, _ := dsp.MeanStd(dsp.SpectralCentroid(spec, buffer.SampleRate))
	return Features{
		Centroid:         centroid,
		ZeroCrossingRate: dsp.ZeroCrossingRate(mono),
	}, nil
}

// Analyze suggests a label for every resolved stem of the job. A stem that
// cannot be analysed is labelled with its own name.
func (a Analyzer) Analyze(ctx context.Context, jobID string) (map[string]string, error) {
	resolution, err := a.resolver.Resolve(ctx, jobID)
	if err != nil {
		return nil, err
	}

	labels := map[string]string{}
	for _, stem := range resolution.Stems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		label, err := a.label(ctx, stem.Path)
		if err != nil {
			log.WithError(err).
				WithFields(log.Fields{"job_id": jobID, "stem": stem.Name}).
				Warn("Falling back to stem name for label")
			label = capitalise(stem.Name)
		}

		labels[stem.Name] = label
	}

	return labels, nil
}

func (a Analyzer) label(ctx context.Context, path string) (string, error) {
	buffer, err := a.codecs.Decode(ctx, path)
	if err != nil {
		return "", err
	}

	features, err := a.Features(ctx, buffer)
	if err != nil {
		return "", err
	}

	return features.Label(), nil
}

func capitalise(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
