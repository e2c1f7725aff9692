package dsp

import (
	"context"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
)

const (
	DefaultHPSSKernel = 31
	DefaultHPSSPower  = 2.0
)

type HPSSParams struct {
	Kernel int
	Power  float64
}

func DefaultHPSSParams() HPSSParams {
	return HPSSParams{
		Kernel: DefaultHPSSKernel,
		Power:  DefaultHPSSPower,
	}
}

// HPSSResult holds the two soft-masked spectrograms. Their sum equals the
// input wherever the input is non-zero.
type HPSSResult struct {
	Harmonic   Spectrogram
	Percussive Spectrogram
}

// HPSS separates harmonic from percussive content by median filtering the
// magnitude along time and frequency respectively. Windows are truncated at
// the edges rather than padded.
func HPSS(ctx context.Context, spec Spectrogram, params HPSSParams) (HPSSResult, error) {
	return hpss(ctx, spec, params, true)
}

// HarmonicHPSS is HPSS without the percussive half, for callers that only
// keep the harmonic spectrogram.
func HarmonicHPSS(ctx context.Context, spec Spectrogram, params HPSSParams) (Spectrogram, error) {
	result, err := hpss(ctx, spec, params, false)
	if err != nil {
		return Spectrogram{}, err
	}
	return result.Harmonic, nil
}

func hpss(ctx context.Context, spec Spectrogram, params HPSSParams, withPercussive bool) (HPSSResult, error) {
	if params.Kernel < 1 {
		return HPSSResult{}, errors.Newf("hpss kernel must be positive, got %d", params.Kernel)
	}

	mags := spec.Magnitude()
	numFrames := len(mags)
	bins := spec.Bins()
	half := params.Kernel / 2

	// along time, one bin at a time
	timeMedians := makeGrid(numFrames, bins)
	err := parallelRange(ctx, bins, func(start, end int) error {
		window := make([]float64, 0, params.Kernel)
		for k := start; k < end; k++ {
			for t := 0; t < numFrames; t++ {
				window = window[:0]
				for j := max(0, t-half); j <= min(numFrames-1, t+half); j++ {
					window = append(window, mags[j][k])
				}
				timeMedians[t][k] = median(window)
			}
		}
		return nil
	})
	if err != nil {
		return HPSSResult{}, err
	}

	harmonic := emptyLike(spec)
	percussive := Spectrogram{}
	if withPercussive {
		percussive = emptyLike(spec)
	}

	// along frequency, one frame at a time, masking as each frame completes
	err = parallelRange(ctx, numFrames, func(start, end int) error {
		window := make([]float64, 0, params.Kernel)
		for t := start; t < end; t++ {
			harmonic.Frames[t] = make([]complex128, bins)
			if withPercussive {
				percussive.Frames[t] = make([]complex128, bins)
			}

			for k := 0; k < bins; k++ {
				window = window[:0]
				for j := max(0, k-half); j <= min(bins-1, k+half); j++ {
					window = append(window, mags[t][j])
				}

				h := math.Pow(timeMedians[t][k], params.Power)
				p := math.Pow(median(window), params.Power)
				total := h + p
				if total == 0 {
					continue
				}

				value := spec.Frames[t][k]
				harmonic.Frames[t][k] = value * complex(h/total, 0)
				if withPercussive {
					percussive.Frames[t][k] = value * complex(p/total, 0)
				}
			}
		}
		return nil
	})
	if err != nil {
		return HPSSResult{}, err
	}

	return HPSSResult{
		Harmonic:   harmonic,
		Percussive: percussive,
	}, nil
}

// emptyLike has the layout of spec with unallocated frames.
func emptyLike(spec Spectrogram) Spectrogram {
	return Spectrogram{
		FFTSize: spec.FFTSize,
		HopSize: spec.HopSize,
		Length:  spec.Length,
		Frames:  make([][]complex128, len(spec.Frames)),
	}
}

func makeGrid(rows int, cols int) [][]float64 {
	grid := make([][]float64, rows)
	for i := range grid {
		grid[i] = make([]float64, cols)
	}
	return grid
}

// median sorts values in place.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}
