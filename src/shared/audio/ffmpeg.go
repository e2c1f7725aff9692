package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/lib/executor"
)

const (
	FFmpegSampleRate = 44100
	ffmpegChannels   = 2
	float32Size      = 4
)

var _ Codec = FFmpegCodec{}

// FFmpegCodec shells out to ffmpeg for compressed formats. Decoded audio is
// always stereo at FFmpegSampleRate.
type FFmpegCodec struct {
	Executor executor.Executor
	BinPath  string
	WAV      WAVCodec
}

func NewFFmpegCodec(exec executor.Executor, binPath string) FFmpegCodec {
	return FFmpegCodec{
		Executor: exec,
		BinPath:  binPath,
	}
}

func (f FFmpegCodec) Decode(ctx context.Context, path string) (Buffer, error) {
	args := []string{
		"-v", "error",
		"-i", path,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(ffmpegChannels),
		"-ar", strconv.Itoa(FFmpegSampleRate),
		"-",
	}

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := f.Executor.CommandContext(ctx, f.BinPath, args...)
	cmd.SetStdout(stdout)
	cmd.SetStderr(stderr)

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Buffer{}, ctxErr
		}

		err = cerr.Field("path", path).Field("stderr", strings.TrimSpace(stderr.String())).
			Wrap(err).Error("ffmpeg failed to decode audio")
		return Buffer{}, mark.Wrap(err, CodecFailed, "Failed to decode audio")
	}

	raw := stdout.Bytes()
	samples := make([]float64, len(raw)/float32Size)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*float32Size:])
		samples[i] = float64(math.Float32frombits(bits))
	}

	return Deinterleave(FFmpegSampleRate, ffmpegChannels, samples), nil
}

// Encode writes a wav next to the destination and lets ffmpeg transcode it.
func (f FFmpegCodec) Encode(ctx context.Context, path string, buffer Buffer) error {
	tmpPath := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".wav")
	if err := f.WAV.Encode(ctx, tmpPath, buffer); err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	args := []string{"-v", "error", "-y", "-i", tmpPath}
	// path may carry PartialSuffix so the muxer is always explicit
	args = append(args, encoderArgs(Format(path))...)
	args = append(args, path)

	cmd := f.Executor.CommandContext(ctx, f.BinPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = cerr.Field("path", path).Field("output", strings.TrimSpace(string(output))).
			Wrap(err).Error("ffmpeg failed to encode audio")
		return mark.Wrap(err, CodecFailed, "Failed to encode audio")
	}

	return nil
}

func encoderArgs(format string) []string {
	switch format {
	case "mp3":
		return []string{"-codec:a", "libmp3lame", "-b:a", "320k", "-f", "mp3"}
	case "ogg":
		return []string{"-codec:a", "libvorbis", "-q:a", "6", "-f", "ogg"}
	case "m4a":
		return []string{"-codec:a", "aac", "-b:a", "256k", "-f", "ipod"}
	case "flac":
		return []string{"-f", "flac"}
	case "aiff", "aif":
		return []string{"-f", "aiff"}
	default:
		return []string{}
	}
}
