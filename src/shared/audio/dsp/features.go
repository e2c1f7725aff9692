package dsp

import "math"

// BinFrequency is the centre frequency in Hz of bin k.
func BinFrequency(k int, sampleRate int, fftSize int) float64 {
	return float64(k) * float64(sampleRate) / float64(fftSize)
}

// SpectralCentroid returns the magnitude-weighted mean frequency of every
// frame. Silent frames have a centroid of 0.
func SpectralCentroid(spec Spectrogram, sampleRate int) []float64 {
	centroids := make([]float64, len(spec.Frames))

	for t, frame := range spec.Frames {
		weighted, total := 0.0, 0.0
		for k, value := range frame {
			mag := cmplxAbs(value)
			weighted += BinFrequency(k, sampleRate, spec.FFTSize) * mag
			total += mag
		}
		if total > 0 {
			centroids[t] = weighted / total
		}
	}

	return centroids
}

// ZeroCrossingRate is the fraction of adjacent sample pairs that change sign.
func ZeroCrossingRate(signal []float64) float64 {
	if len(signal) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(signal); i++ {
		if (signal[i-1] >= 0) != (signal[i] >= 0) {
			crossings++
		}
	}

	return float64(crossings) / float64(len(signal)-1)
}

func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	mean := 0.0
	for _, value := range values {
		mean += value
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, value := range values {
		variance += (value - mean) * (value - mean)
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance)
}

// LeadFrames flags the frames whose centroid lies within sigma standard
// deviations of the mean, bounds included.
func LeadFrames(centroids []float64, sigma float64) []bool {
	mean, std := MeanStd(centroids)
	lower := mean - sigma*std
	upper := mean + sigma*std

	lead := make([]bool, len(centroids))
	for t, centroid := range centroids {
		lead[t] = centroid >= lower && centroid <= upper
	}

	return lead
}

// PeakNormalize scales signal so its largest absolute sample is 1. An
// all-zero signal is returned unchanged.
func PeakNormalize(signal []float64) []float64 {
	peak := 0.0
	for _, value := range signal {
		peak = math.Max(peak, math.Abs(value))
	}

	out := make([]float64, len(signal))
	if peak == 0 {
		return out
	}

	for i, value := range signal {
		out[i] = value / peak
	}
	return out
}

// MidSide splits a stereo pair into centre (L+R)/2 and sides (L-R)/2.
func MidSide(left []float64, right []float64) ([]float64, []float64) {
	frames := min(len(left), len(right))
	center := make([]float64, frames)
	sides := make([]float64, frames)

	for i := 0; i < frames; i++ {
		center[i] = (left[i] + right[i]) / 2
		sides[i] = (left[i] - right[i]) / 2
	}

	return center, sides
}

// Mix returns a*x + b*y over the shorter of the two signals.
func Mix(a float64, x []float64, b float64, y []float64) []float64 {
	frames := min(len(x), len(y))
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		out[i] = a*x[i] + b*y[i]
	}
	return out
}

// BandMask keeps bins with frequency in [low, high] and zeroes the rest.
func BandMask(spec Spectrogram, sampleRate int, low float64, high float64) [][]float64 {
	mask := makeGrid(len(spec.Frames), spec.Bins())
	for t := range mask {
		for k := range mask[t] {
			freq := BinFrequency(k, sampleRate, spec.FFTSize)
			if freq >= low && freq <= high {
				mask[t][k] = 1
			}
		}
	}
	return mask
}

// KeepFrames zeroes, in place, every frame whose flag differs from keep.
// Frames past the end of flags are zeroed too.
func KeepFrames(spec Spectrogram, flags []bool, keep bool) {
	for t, frame := range spec.Frames {
		if t < len(flags) && flags[t] == keep {
			continue
		}
		for k := range frame {
			frame[k] = 0
		}
	}
}
