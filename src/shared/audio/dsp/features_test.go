package dsp_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/audio/dsp"
	. "github.com/jasonlryan/demucs/src/shared/testing"
)

var _ = Describe("Features", func() {
	ctx := context.Background()

	Describe("SpectralCentroid", func() {
		It("sits on the frequency of a pure tone", func() {
			sampleRate := 8192
			// bin aligned: 1024 Hz is bin 256 of 2048
			spec := ExpectSuccess(dsp.NewSTFT().Forward(ctx, tone(1024, sampleRate, sampleRate)))
			centroids := dsp.SpectralCentroid(spec, sampleRate)

			Expect(centroids[len(centroids)/2]).To(BeNumerically("~", 1024, 1))
		})

		It("is zero for silent frames", func() {
			spec := ExpectSuccess(dsp.NewSTFT().Forward(ctx, make([]float64, 4096)))
			for _, centroid := range dsp.SpectralCentroid(spec, 44100) {
				Expect(centroid).To(BeZero())
			}
		})
	})

	It("computes bin frequencies", func() {
		Expect(dsp.BinFrequency(10, 44100, 2048)).To(BeNumerically("~", 215.33, 0.01))
	})

	It("counts zero crossings", func() {
		Expect(dsp.ZeroCrossingRate([]float64{1, -1, 1, -1, 1})).To(Equal(1.0))
		Expect(dsp.ZeroCrossingRate([]float64{1, 1, 1})).To(BeZero())
		Expect(dsp.ZeroCrossingRate([]float64{1})).To(BeZero())
	})

	Describe("LeadFrames", func() {
		It("keeps frames within sigma of the mean, bounds included", func() {
			// mean 2, population std 1
			centroids := []float64{1, 3, 1, 3}
			Expect(dsp.LeadFrames(centroids, 1)).To(Equal([]bool{true, true, true, true}))
			Expect(dsp.LeadFrames(centroids, 0.5)).To(Equal([]bool{false, false, false, false}))
		})

		It("treats every frame as lead when there is no spread", func() {
			Expect(dsp.LeadFrames([]float64{5, 5, 5}, 0.7)).To(Equal([]bool{true, true, true}))
		})
	})

	Describe("PeakNormalize", func() {
		It("scales the loudest sample to one", func() {
			Expect(dsp.PeakNormalize([]float64{0.25, -0.5})).To(Equal([]float64{0.5, -1}))
		})

		It("keeps silence silent", func() {
			Expect(dsp.PeakNormalize([]float64{0, 0})).To(Equal([]float64{0, 0}))
		})
	})

	Describe("MidSide", func() {
		It("has no sides for identical channels", func() {
			signal := []float64{0.1, -0.4, 0.9}
			center, sides := dsp.MidSide(signal, signal)
			Expect(center).To(Equal(signal))
			Expect(sides).To(Equal([]float64{0, 0, 0}))
		})

		It("puts opposite channels entirely in the sides", func() {
			center, sides := dsp.MidSide([]float64{0.5}, []float64{-0.5})
			Expect(center).To(Equal([]float64{0}))
			Expect(sides).To(Equal([]float64{0.5}))
		})
	})

	Describe("KeepFrames", func() {
		It("zeroes frames whose flag differs, in place", func() {
			spec := dsp.Spectrogram{
				FFTSize: 2,
				Frames: [][]complex128{
					{1, 2},
					{3, 4},
					{5, 6},
				},
			}

			dsp.KeepFrames(spec, []bool{true, false, true}, true)
			Expect(spec.Frames).To(Equal([][]complex128{{1, 2}, {0, 0}, {5, 6}}))

			dsp.KeepFrames(spec, []bool{true, false, true}, false)
			Expect(spec.Frames).To(Equal([][]complex128{{0, 0}, {0, 0}, {0, 0}}))
		})

		It("zeroes frames with no flag", func() {
			spec := dsp.Spectrogram{
				FFTSize: 2,
				Frames:  [][]complex128{{1, 2}, {3, 4}},
			}

			dsp.KeepFrames(spec, []bool{false}, false)
			Expect(spec.Frames).To(Equal([][]complex128{{1, 2}, {0, 0}}))
		})
	})

	It("builds inclusive band masks", func() {
		spec := dsp.Spectrogram{FFTSize: 8, HopSize: 2, Frames: [][]complex128{make([]complex128, 5)}}
		// bins are 0, 100, 200, 300, 400 Hz at 800 Hz sampling
		mask := dsp.BandMask(spec, 800, 100, 300)
		Expect(mask).To(Equal([][]float64{{0, 1, 1, 1, 0}}))
	})
})
