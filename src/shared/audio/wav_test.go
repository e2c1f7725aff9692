package audio_test

import (
	"context"
	"math"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors/markers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	. "github.com/jasonlryan/demucs/src/shared/testing"
)

func sine(freq float64, sampleRate int, frames int, amplitude float64) []float64 {
	out := make([]float64, frames)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

var _ = Describe("WAVCodec", func() {
	var (
		dir   string
		codec audio.WAVCodec
		ctx   context.Context
	)

	BeforeEach(func() {
		dir = MakeTempDir()
		ctx = context.Background()
	})

	AfterEach(func() {
		RemoveTempDir(dir)
	})

	It("round trips stereo audio within 16-bit precision", func() {
		left := sine(440, 8000, 800, 0.5)
		right := sine(880, 8000, 800, 0.25)
		path := filepath.Join(dir, "stereo.wav")

		Expect(codec.Encode(ctx, path, audio.NewStereo(8000, left, right))).To(Succeed())

		decoded := ExpectSuccess(codec.Decode(ctx, path))
		Expect(decoded.SampleRate).To(Equal(8000))
		Expect(decoded.NumChannels()).To(Equal(2))
		Expect(decoded.Frames()).To(Equal(800))

		for i := range left {
			Expect(decoded.Channels[0][i]).To(BeNumerically("~", left[i], 1e-3))
			Expect(decoded.Channels[1][i]).To(BeNumerically("~", right[i], 1e-3))
		}
	})

	It("clips samples outside the unit range", func() {
		path := filepath.Join(dir, "loud.wav")
		Expect(codec.Encode(ctx, path, audio.NewMono(8000, []float64{2, -2, 0}))).To(Succeed())

		decoded := ExpectSuccess(codec.Decode(ctx, path))
		Expect(decoded.Channels[0][0]).To(BeNumerically("~", 1, 1e-3))
		Expect(decoded.Channels[0][1]).To(BeNumerically("~", -1, 1e-3))
		Expect(decoded.Channels[0][2]).To(BeNumerically("~", 0, 1e-9))
	})

	It("rejects files that are not wav", func() {
		path := filepath.Join(dir, "fake.wav")
		Expect(os.WriteFile(path, []byte("definitely not riff data"), 0o644)).To(Succeed())

		_, err := codec.Decode(ctx, path)
		Expect(markers.Is(err, stementity.InvalidAudioFormat)).To(BeTrue())
	})

	It("refuses to write an empty buffer", func() {
		err := codec.Encode(ctx, filepath.Join(dir, "empty.wav"), audio.Buffer{SampleRate: 8000})
		Expect(err).To(HaveOccurred())
	})
})
