package refine_test

import (
	"context"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/audio/dsp"
	"github.com/jasonlryan/demucs/src/shared/refine"
	. "github.com/jasonlryan/demucs/src/shared/testing"
)

var _ = Describe("VocalRefiner", func() {
	ctx := context.Background()

	partsByName := func(parts []refine.Part) map[string]audio.Buffer {
		byName := map[string]audio.Buffer{}
		for _, part := range parts {
			byName[part.Name] = part.Audio
		}
		return byName
	}

	It("returns the input as lead and silence as backing for mono input", func() {
		signal := tones(sampleRate/2, 220, 440)
		signal[100] = 1

		for _, input := range []audio.Buffer{
			audio.NewMono(sampleRate, signal),
			audio.NewStereo(sampleRate, signal, signal),
		} {
			parts := partsByName(ExpectSuccess(refine.NewVocalRefiner().Refine(ctx, input)))

			lead := parts["lead"].Channels[0]
			Expect(lead).To(HaveLen(len(signal)))
			for i := range signal {
				Expect(lead[i]).To(BeNumerically("~", signal[i], 1e-12))
			}

			Expect(peak(parts["backing"].Channels[0])).To(BeZero())
		}
	})

	It("produces normalised lead and backing for a stereo mix", func() {
		left := tones(sampleRate/2, 220, 3000)
		right := tones(sampleRate/2, 220, 5000)

		parts := partsByName(ExpectSuccess(refine.NewVocalRefiner().Refine(ctx, audio.NewStereo(sampleRate, left, right))))
		Expect(parts).To(HaveKey("lead"))
		Expect(parts).To(HaveKey("backing"))

		for _, buffer := range parts {
			Expect(buffer.SampleRate).To(Equal(sampleRate))
			Expect(buffer.Frames()).To(Equal(len(left)))
			Expect(peak(buffer.Channels[0])).To(BeNumerically("~", 1, 1e-9))
		}
	})

	It("uses only the centre and sides when the spectral weight is zero", func() {
		left := tones(sampleRate/2, 220, 3000)
		right := tones(sampleRate/2, 330, 5000)

		params := refine.DefaultVocalParams()
		params.CenterWeight = 1
		params.SpectralWeight = 0
		refiner := refine.VocalRefiner{Params: params, STFT: dsp.NewSTFT()}

		parts := partsByName(ExpectSuccess(refiner.Refine(ctx, audio.NewStereo(sampleRate, left, right))))

		center, sides := dsp.MidSide(left, right)
		expectedLead := dsp.PeakNormalize(center)
		expectedBacking := dsp.PeakNormalize(sides)

		lead := parts["lead"].Channels[0]
		backing := parts["backing"].Channels[0]
		Expect(lead).To(HaveLen(len(expectedLead)))
		Expect(backing).To(HaveLen(len(expectedBacking)))
		for i := range expectedLead {
			Expect(lead[i]).To(BeNumerically("~", expectedLead[i], 1e-12))
			Expect(backing[i]).To(BeNumerically("~", expectedBacking[i], 1e-12))
		}
	})

	It("silences frames outside each part's centroid band in the spectral path", func() {
		// low, typical and high centroid thirds; only the middle third is lead
		segment := sampleRate / 2
		left := append(append(tones(segment, 220), tones(segment, 2000)...), tones(segment, 8000)...)
		right := make([]float64, len(left))
		for i := range left {
			right[i] = 0.5 * left[i]
		}
		input := audio.NewStereo(sampleRate, left, right)

		params := refine.DefaultVocalParams()
		params.CenterWeight = 0
		params.SpectralWeight = 1
		stft := dsp.NewSTFT()
		refiner := refine.VocalRefiner{Params: params, STFT: stft}

		parts := partsByName(ExpectSuccess(refiner.Refine(ctx, input)))
		lead := parts["lead"].Channels[0]
		backing := parts["backing"].Channels[0]

		spec := ExpectSuccess(stft.Forward(ctx, input.Mono()))
		leadFrames := dsp.LeadFrames(dsp.SpectralCentroid(spec, sampleRate), params.CentroidSigma)
		Expect(leadFrames).To(ContainElement(true))
		Expect(leadFrames).To(ContainElement(false))

		// every frame whose window reaches sample i, frames being centred
		coveringFrames := func(i int) []bool {
			position := i + stft.FFTSize/2
			first := 0
			if position >= stft.FFTSize {
				first = (position-stft.FFTSize)/stft.HopSize + 1
			}
			last := min(len(leadFrames)-1, position/stft.HopSize)
			return leadFrames[first : last+1]
		}

		leadOnly, backingOnly := 0, 0
		for i := range lead {
			covering := coveringFrames(i)
			switch {
			case !slices.Contains(covering, true):
				backingOnly++
				Expect(lead[i]).To(BeNumerically("~", 0, 1e-12))
			case !slices.Contains(covering, false):
				leadOnly++
				Expect(backing[i]).To(BeNumerically("~", 0, 1e-12))
			}
		}
		Expect(leadOnly).To(BeNumerically(">", 0))
		Expect(backingOnly).To(BeNumerically(">", 0))

		Expect(peak(lead)).To(BeNumerically("~", 1, 1e-9))
		Expect(peak(backing)).To(BeNumerically("~", 1, 1e-9))
	})

	It("exposes its blend parameters", func() {
		params := refine.DefaultVocalParams()
		Expect(params.CenterWeight).To(Equal(0.7))
		Expect(params.SpectralWeight).To(Equal(0.3))
		Expect(params.CentroidSigma).To(Equal(0.7))
	})
})
