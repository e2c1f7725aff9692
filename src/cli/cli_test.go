package main

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/audio"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	. "github.com/jasonlryan/demucs/src/shared/testing"
	testdummy "github.com/jasonlryan/demucs/src/shared/testing/dummy"
)

const sampleRate = 44100

func tone(freqs ...float64) []float64 {
	out := make([]float64, sampleRate/2)
	for _, freq := range freqs {
		for i := range out {
			out[i] += 0.3 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
		}
	}
	return out
}

func writeWAV(path string, buffer audio.Buffer) {
	ExpectWithOffset(1, os.MkdirAll(filepath.Dir(path), os.ModePerm)).To(Succeed())
	ExpectWithOffset(1, audio.WAVCodec{}.Encode(context.Background(), path, buffer)).To(Succeed())
}

func argAfter(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// fakeDemucs writes two wav stems named after the input file.
func fakeDemucs(ctx context.Context, inv testdummy.Invocation, _ io.Writer, _ io.Writer) error {
	input := inv.Args[0]
	jobID := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	outDir := filepath.Join(argAfter(inv.Args, "-o"), argAfter(inv.Args, "-n"), jobID)

	for _, name := range []string{"vocals", "drums"} {
		path := filepath.Join(outDir, name+".wav")
		if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
			return err
		}
		if err := (audio.WAVCodec{}).Encode(ctx, path, audio.NewMono(sampleRate, tone(220))); err != nil {
			return err
		}
	}

	return nil
}

var _ = Describe("stemctl", func() {
	var (
		tempDir   string
		stemRoot  string
		uploadDir string
		executor  *testdummy.Executor
	)

	run := func(args ...string) (string, error) {
		cmdCtx := newCommandContext()
		cmdCtx.executor = executor

		root := newRootCommand(cmdCtx)
		stdout := &bytes.Buffer{}
		root.SetOut(stdout)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append([]string{"--stem-root", stemRoot, "--upload-dir", uploadDir}, args...))

		err := root.Execute()
		return stdout.String(), err
	}

	BeforeEach(func() {
		tempDir = MakeTempDir()
		stemRoot = filepath.Join(tempDir, "separated")
		uploadDir = filepath.Join(tempDir, "uploads")
		MakeDirs(tempDir, "separated", "uploads")

		executor = testdummy.NewExecutor(fakeDemucs)
		executor.Binaries["demucs"] = "/opt/demucs"
	})

	AfterEach(func() {
		RemoveTempDir(tempDir)
	})

	Describe("splitters", func() {
		It("marks which splitters are installed", func() {
			out := ExpectSuccess(run("splitters"))

			Expect(out).To(MatchRegexp(`demucs\s+htdemucs_6s\s+6\s+true`))
			Expect(out).To(MatchRegexp(`spleeter\s+2stems\s+2\s+false`))
		})
	})

	Describe("resolve", func() {
		It("prints the manifest of a job", func() {
			TouchFiles(stemRoot, "htdemucs/song/vocals.mp3", "htdemucs/song/bass.mp3")

			out := ExpectSuccess(run("resolve", "song"))

			manifest := DecodeJSON[stementity.Manifest](strings.NewReader(out))
			Expect(manifest.JobID).To(Equal("song"))
			Expect(manifest.Stems).To(HaveLen(2))
			Expect(manifest.Mix).To(BeNil())
		})

		It("fails for an unknown job", func() {
			_, err := run("resolve", "nothing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("load and folders", func() {
		BeforeEach(func() {
			TouchFiles(tempDir, "elsewhere/project/vocals.wav", "elsewhere/project/mix.wav")
		})

		It("loads a folder outside the stem root", func() {
			out := ExpectSuccess(run("load", filepath.Join(tempDir, "elsewhere", "project")))

			manifest := DecodeJSON[stementity.Manifest](strings.NewReader(out))
			Expect(manifest.JobID).To(Equal("project"))
			Expect(manifest.Stems).To(HaveLen(1))
			Expect(manifest.Mix).NotTo(BeNil())
		})

		It("lists folders", func() {
			out := ExpectSuccess(run("folders", filepath.Join(tempDir, "elsewhere")))
			Expect(out).To(ContainSubstring(`"name": "project"`))
		})
	})

	Describe("separate", func() {
		var sourcePath string

		BeforeEach(func() {
			sourcePath = filepath.Join(tempDir, "incoming", "song.wav")
			writeWAV(sourcePath, audio.NewMono(sampleRate, tone(440)))
		})

		It("copies the source into the uploads and separates it", func() {
			out := ExpectSuccess(run("separate", sourcePath, "--model", "htdemucs", "--format", "wav"))

			manifest := DecodeJSON[stementity.Manifest](strings.NewReader(out))
			Expect(manifest.JobID).To(Equal("song"))
			Expect(manifest.Model).To(Equal("htdemucs"))
			Expect(manifest.Stems).To(HaveLen(2))
			Expect(manifest.Mix).NotTo(BeNil())
			Expect(manifest.Mix.Path).To(Equal(filepath.Join(uploadDir, "song.wav")))

			Expect(filepath.Join(stemRoot, "htdemucs", "song", "vocals.wav")).To(BeARegularFile())
			Expect(executor.Invocations()).To(HaveLen(1))
		})

		It("validates the model before running anything", func() {
			_, err := run("separate", sourcePath, "--model", "nope")

			Expect(err).To(HaveOccurred())
			Expect(executor.Invocations()).To(BeEmpty())
			Expect(filepath.Join(uploadDir, "song.wav")).NotTo(BeAnExistingFile())
		})

		It("gives up when the timeout passes", func() {
			executor.Handler = func(ctx context.Context, _ testdummy.Invocation, _ io.Writer, _ io.Writer) error {
				<-ctx.Done()
				return ctx.Err()
			}

			_, err := run("--timeout", "50ms", "separate", sourcePath, "--model", "htdemucs")
			Expect(err).To(HaveOccurred())
			Expect(filepath.Join(stemRoot, "htdemucs", "song")).NotTo(BeAnExistingFile())
		})
	})

	Describe("refine", func() {
		BeforeEach(func() {
			writeWAV(filepath.Join(stemRoot, "htdemucs", "song", "drums.wav"),
				audio.NewMono(sampleRate, tone(60, 1000, 6000)))
		})

		It("splits the drums into parts", func() {
			out := ExpectSuccess(run("refine", "drums", "song"))

			manifest := DecodeJSON[stementity.Manifest](strings.NewReader(out))
			Expect(manifest.ChildSplits["drums"]).To(HaveLen(4))
			Expect(filepath.Join(stemRoot, "htdemucs", "song", "drums", "kick.wav")).To(BeARegularFile())
		})

		It("only knows vocals and drums", func() {
			_, err := run("refine", "piano", "song")
			Expect(err).To(MatchError(ContainSubstring("Cannot refine")))
		})
	})
})
