package refine_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/refine"
	. "github.com/jasonlryan/demucs/src/shared/testing"
)

var _ = Describe("DrumRefiner", func() {
	var parts map[string][]float64

	BeforeEach(func() {
		input := audio.NewMono(sampleRate, tones(sampleRate, 60, 10000))
		result := ExpectSuccess(refine.NewDrumRefiner().Refine(context.Background(), input))

		parts = map[string][]float64{}
		for _, part := range result {
			Expect(part.Audio.NumChannels()).To(Equal(1))
			Expect(part.Audio.Frames()).To(Equal(sampleRate))
			parts[part.Name] = part.Audio.Channels[0]
		}
	})

	It("produces the four bands in order", func() {
		Expect(refine.NewDrumRefiner().Parts()).To(Equal([]string{"kick", "snare", "hihat", "cymbals"}))
		Expect(parts).To(HaveLen(4))
	})

	It("keeps the kick below 200 Hz", func() {
		above := energyFraction(parts["kick"], func(freq float64) bool { return freq > 200 })
		Expect(above).To(BeNumerically("<", 1e-2))
		Expect(peak(parts["kick"])).To(BeNumerically("~", 1, 1e-9))
	})

	It("keeps the cymbals above 4000 Hz", func() {
		below := energyFraction(parts["cymbals"], func(freq float64) bool { return freq < 4000 })
		Expect(below).To(BeNumerically("<", 1e-2))
		Expect(peak(parts["cymbals"])).To(BeNumerically("~", 1, 1e-9))
	})

	It("honours custom bands", func() {
		refiner := refine.DrumRefiner{
			Bands: []refine.Band{{Name: "sub", Low: 0, High: 100}},
			STFT:  refine.NewDrumRefiner().STFT,
		}

		result := ExpectSuccess(refiner.Refine(context.Background(), audio.NewMono(sampleRate, tones(sampleRate, 60))))
		Expect(result).To(HaveLen(1))
		Expect(result[0].Name).To(Equal("sub"))
	})
})
