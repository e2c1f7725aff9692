package dsp

import (
	"context"
	"math"
	"runtime"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultFFTSize = 2048
	DefaultHopSize = 512
)

// Spectrogram is indexed [frame][bin] with FFTSize/2+1 bins per frame.
type Spectrogram struct {
	FFTSize int
	HopSize int
	Length  int
	Frames  [][]complex128
}

func (s Spectrogram) Bins() int {
	return s.FFTSize/2 + 1
}

// Magnitude returns |X| with the same layout as Frames.
func (s Spectrogram) Magnitude() [][]float64 {
	mags := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		mags[t] = make([]float64, len(frame))
		for k, value := range frame {
			mags[t][k] = cmplxAbs(value)
		}
	}
	return mags
}

// Apply returns a copy of the spectrogram scaled bin-by-bin by mask.
func (s Spectrogram) Apply(mask [][]float64) Spectrogram {
	frames := make([][]complex128, len(s.Frames))
	for t, frame := range s.Frames {
		frames[t] = make([]complex128, len(frame))
		for k, value := range frame {
			frames[t][k] = value * complex(mask[t][k], 0)
		}
	}

	return Spectrogram{
		FFTSize: s.FFTSize,
		HopSize: s.HopSize,
		Length:  s.Length,
		Frames:  frames,
	}
}

// STFT is a centred short-time Fourier transform with a periodic Hann window.
type STFT struct {
	FFTSize int
	HopSize int
}

func NewSTFT() STFT {
	return STFT{
		FFTSize: DefaultFFTSize,
		HopSize: DefaultHopSize,
	}
}

func (s STFT) validate() error {
	if s.FFTSize <= 0 || s.FFTSize%2 != 0 {
		return errors.Newf("fft size must be positive and even, got %d", s.FFTSize)
	}
	if s.HopSize <= 0 || s.HopSize > s.FFTSize {
		return errors.Newf("hop size must be in (0, %d], got %d", s.FFTSize, s.HopSize)
	}
	return nil
}

func HannWindow(n int) []float64 {
	window := make([]float64, n)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return window
}

func (s STFT) Forward(ctx context.Context, signal []float64) (Spectrogram, error) {
	if err := s.validate(); err != nil {
		return Spectrogram{}, err
	}

	n := s.FFTSize
	padded := make([]float64, len(signal)+n)
	copy(padded[n/2:], signal)

	numFrames := 1 + (len(padded)-n)/s.HopSize
	frames := make([][]complex128, numFrames)
	window := HannWindow(n)

	err := parallelRange(ctx, numFrames, func(start, end int) error {
		fft := fourier.NewFFT(n)
		buf := make([]float64, n)

		for t := start; t < end; t++ {
			offset := t * s.HopSize
			for i := 0; i < n; i++ {
				buf[i] = padded[offset+i] * window[i]
			}
			frames[t] = fft.Coefficients(nil, buf)
		}
		return nil
	})
	if err != nil {
		return Spectrogram{}, err
	}

	return Spectrogram{
		FFTSize: n,
		HopSize: s.HopSize,
		Length:  len(signal),
		Frames:  frames,
	}, nil
}

// Inverse reconstructs a signal of spec.Length samples by weighted overlap-add.
func Inverse(ctx context.Context, spec Spectrogram) ([]float64, error) {
	stft := STFT{FFTSize: spec.FFTSize, HopSize: spec.HopSize}
	if err := stft.validate(); err != nil {
		return nil, err
	}

	n := spec.FFTSize
	numFrames := len(spec.Frames)
	window := HannWindow(n)

	segments := make([][]float64, numFrames)
	err := parallelRange(ctx, numFrames, func(start, end int) error {
		fft := fourier.NewFFT(n)
		for t := start; t < end; t++ {
			segment := fft.Sequence(nil, spec.Frames[t])
			for i := range segment {
				segment[i] = segment[i] / float64(n) * window[i]
			}
			segments[t] = segment
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	totalLength := n + (numFrames-1)*spec.HopSize
	if numFrames == 0 {
		totalLength = 0
	}
	output := make([]float64, totalLength)
	norm := make([]float64, totalLength)

	for t, segment := range segments {
		offset := t * spec.HopSize
		for i, value := range segment {
			output[offset+i] += value
			norm[offset+i] += window[i] * window[i]
		}
	}

	for i := range output {
		if norm[i] > 1e-10 {
			output[i] /= norm[i]
		}
	}

	signal := make([]float64, spec.Length)
	for i := range signal {
		j := i + n/2
		if j < len(output) {
			signal[i] = output[j]
		}
	}

	return signal, nil
}

// parallelRange splits [0, total) into contiguous chunks, one per CPU.
func parallelRange(ctx context.Context, total int, work func(start, end int) error) error {
	if total == 0 {
		return ctx.Err()
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > total {
		workers = total
	}
	chunk := (total + workers - 1) / workers

	group, groupCtx := errgroup.WithContext(ctx)
	for start := 0; start < total; start += chunk {
		start := start
		end := start + chunk
		if end > total {
			end = total
		}

		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return work(start, end)
		})
	}

	return group.Wait()
}

func cmplxAbs(value complex128) float64 {
	return math.Hypot(real(value), imag(value))
}
