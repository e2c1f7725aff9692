package audio

// Buffer holds de-interleaved samples, nominally in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float64
}

func NewMono(sampleRate int, samples []float64) Buffer {
	return Buffer{
		SampleRate: sampleRate,
		Channels:   [][]float64{samples},
	}
}

func NewStereo(sampleRate int, left []float64, right []float64) Buffer {
	return Buffer{
		SampleRate: sampleRate,
		Channels:   [][]float64{left, right},
	}
}

func (b Buffer) NumChannels() int {
	return len(b.Channels)
}

func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}

	return len(b.Channels[0])
}

func (b Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}

	return float64(b.Frames()) / float64(b.SampleRate)
}

// Mono averages all channels.
func (b Buffer) Mono() []float64 {
	frames := b.Frames()
	mono := make([]float64, frames)
	if len(b.Channels) == 0 {
		return mono
	}

	for _, channel := range b.Channels {
		for i := 0; i < frames; i++ {
			mono[i] += channel[i]
		}
	}

	scale := 1 / float64(len(b.Channels))
	for i := range mono {
		mono[i] *= scale
	}

	return mono
}

// Stereo returns the first two channels, duplicating a mono channel.
func (b Buffer) Stereo() ([]float64, []float64) {
	switch len(b.Channels) {
	case 0:
		return []float64{}, []float64{}
	case 1:
		return b.Channels[0], b.Channels[0]
	default:
		return b.Channels[0], b.Channels[1]
	}
}

// Truncate keeps at most the first seconds of audio.
func (b Buffer) Truncate(seconds float64) Buffer {
	limit := int(seconds * float64(b.SampleRate))
	if limit >= b.Frames() {
		return b
	}

	channels := make([][]float64, len(b.Channels))
	for i, channel := range b.Channels {
		channels[i] = channel[:limit]
	}

	return Buffer{SampleRate: b.SampleRate, Channels: channels}
}

func (b Buffer) Interleave() []float64 {
	frames := b.Frames()
	numChannels := len(b.Channels)
	out := make([]float64, frames*numChannels)

	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			out[i*numChannels+c] = b.Channels[c][i]
		}
	}

	return out
}

func Deinterleave(sampleRate int, numChannels int, samples []float64) Buffer {
	if numChannels <= 0 {
		numChannels = 1
	}

	frames := len(samples) / numChannels
	channels := make([][]float64, numChannels)
	for c := range channels {
		channels[c] = make([]float64, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			channels[c][i] = samples[i*numChannels+c]
		}
	}

	return Buffer{SampleRate: sampleRate, Channels: channels}
}
