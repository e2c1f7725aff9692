package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/cockroachdb/errors/domains"
	"github.com/cockroachdb/errors/markers"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

var (
	CodecFailed = domains.New("codec_failed")
	// UnsupportedEncoding marks a file whose container is understood but
	// whose sample encoding is not.
	UnsupportedEncoding = domains.New("unsupported_encoding")
)

//counterfeiter:generate . Codec
type Codec interface {
	Decode(ctx context.Context, path string) (Buffer, error)
	Encode(ctx context.Context, path string, buffer Buffer) error
}

// Codecs picks a codec by file extension. WAV is handled natively, every
// other format goes through ffmpeg when it is configured. A WAV file the
// native codec cannot decode, such as IEEE float, is also handed to ffmpeg.
type Codecs struct {
	WAV    Codec
	FFmpeg Codec
}

var ffmpegFormats = map[string]bool{
	"mp3":  true,
	"flac": true,
	"m4a":  true,
	"ogg":  true,
	"aiff": true,
	"aif":  true,
}

// PartialSuffix marks a file that is still being written.
const PartialSuffix = ".partial"

// Format is the lower-case extension of path, ignoring PartialSuffix.
func Format(path string) string {
	path = strings.TrimSuffix(path, PartialSuffix)
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (c Codecs) For(path string) (Codec, error) {
	format := Format(path)

	switch {
	case format == "wav" && c.WAV != nil:
		return c.WAV, nil

	case ffmpegFormats[format]:
		if c.FFmpeg == nil {
			return nil, mark.Message(stementity.InvalidAudioFormat,
				fmt.Sprintf("No decoder available for %s files", format))
		}
		return c.FFmpeg, nil

	default:
		return nil, mark.Message(stementity.InvalidAudioFormat,
			fmt.Sprintf("Unsupported audio format %q", format))
	}
}

// Supports reports whether path can be read and written.
func (c Codecs) Supports(path string) bool {
	_, err := c.For(path)
	return err == nil
}

func (c Codecs) Decode(ctx context.Context, path string) (Buffer, error) {
	codec, err := c.For(path)
	if err != nil {
		return Buffer{}, err
	}

	buffer, err := codec.Decode(ctx, path)
	if err != nil && Format(path) == "wav" && c.FFmpeg != nil && markers.Is(err, UnsupportedEncoding) {
		log.WithError(err).WithField("path", path).Info("Decoding wav through ffmpeg")
		return c.FFmpeg.Decode(ctx, path)
	}

	return buffer, err
}

func (c Codecs) Encode(ctx context.Context, path string, buffer Buffer) error {
	codec, err := c.For(path)
	if err != nil {
		return err
	}

	return codec.Encode(ctx, path, buffer)
}
