package audio

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavOutputBitDepth   = 16
)

var _ Codec = WAVCodec{}

// WAVCodec reads integer PCM wav files and writes 16-bit PCM. Other
// encodings are marked UnsupportedEncoding.
type WAVCodec struct{}

func (WAVCodec) Decode(ctx context.Context, path string) (Buffer, error) {
	if err := ctx.Err(); err != nil {
		return Buffer{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return Buffer{}, cerr.Field("path", path).Wrap(err).Error("Failed to open wav file")
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return Buffer{}, mark.Message(stementity.InvalidAudioFormat,
			fmt.Sprintf("%s is not a valid wav file", path))
	}

	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		err := mark.Message(stementity.InvalidAudioFormat,
			fmt.Sprintf("wav encoding %d is not supported", decoder.WavAudioFormat))
		return Buffer{}, errors.Mark(err, UnsupportedEncoding)
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return Buffer{}, mark.Wrap(err, stementity.InvalidAudioFormat, "Failed to read wav samples")
	}

	bitDepth := int(decoder.BitDepth)
	scale := math.Pow(2, float64(bitDepth-1))
	// 8-bit wav is unsigned
	offset := 0.0
	if bitDepth == 8 {
		offset = scale
	}

	samples := make([]float64, len(pcm.Data))
	for i, value := range pcm.Data {
		samples[i] = (float64(value) - offset) / scale
	}

	return Deinterleave(int(decoder.SampleRate), int(decoder.NumChans), samples), nil
}

func (WAVCodec) Encode(ctx context.Context, path string, buffer Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if buffer.NumChannels() == 0 || buffer.SampleRate <= 0 {
		return cerr.Field("path", path).Error("Cannot encode an empty audio buffer")
	}

	file, err := os.Create(path)
	if err != nil {
		return cerr.Field("path", path).Wrap(err).Error("Failed to create wav file")
	}

	encoder := wav.NewEncoder(file, buffer.SampleRate, wavOutputBitDepth, buffer.NumChannels(), wavFormatPCM)

	peak := math.Pow(2, wavOutputBitDepth-1) - 1
	interleaved := buffer.Interleave()
	data := make([]int, len(interleaved))
	for i, sample := range interleaved {
		data[i] = int(math.Round(clamp(sample) * peak))
	}

	intBuffer := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: buffer.NumChannels(),
			SampleRate:  buffer.SampleRate,
		},
		Data:           data,
		SourceBitDepth: wavOutputBitDepth,
	}

	if err := encoder.Write(intBuffer); err != nil {
		_ = file.Close()
		return cerr.Field("path", path).Wrap(err).Error("Failed to write wav samples")
	}

	if err := encoder.Close(); err != nil {
		_ = file.Close()
		return cerr.Field("path", path).Wrap(err).Error("Failed to finalise wav file")
	}

	return file.Close()
}

func clamp(sample float64) float64 {
	switch {
	case math.IsNaN(sample):
		return 0
	case sample > 1:
		return 1
	case sample < -1:
		return -1
	default:
		return sample
	}
}
