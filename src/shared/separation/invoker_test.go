package separation_test

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/markers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/separation"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	. "github.com/jasonlryan/demucs/src/shared/testing"
	"github.com/jasonlryan/demucs/src/shared/testing/dummy"
)

func argAfter(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	Fail("flag " + flag + " not found")
	return ""
}

// fakeDemucs writes stems where demucs would: {-o}/{-n}/{input stem}/
func fakeDemucs(stems ...string) dummy.CommandHandler {
	return func(_ context.Context, inv dummy.Invocation, stdout io.Writer, _ io.Writer) error {
		input := inv.Args[0]
		jobID := filepath.Base(input)
		jobID = jobID[:len(jobID)-len(filepath.Ext(jobID))]

		outDir := filepath.Join(argAfter(inv.Args, "-o"), argAfter(inv.Args, "-n"), jobID)
		if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
			return err
		}
		for _, stem := range stems {
			if err := os.WriteFile(filepath.Join(outDir, stem+".mp3"), []byte(stem), 0o644); err != nil {
				return err
			}
		}

		_, err := io.WriteString(stdout, "Separated tracks will be stored in "+outDir+"\n")
		return err
	}
}

var _ = Describe("Invoker", func() {
	var (
		ctx        context.Context
		tempDir    string
		stemRoot   string
		uploadDir  string
		sourcePath string
		exec       *dummy.Executor
		invoker    separation.Invoker
	)

	request := func() separation.Request {
		return separation.Request{
			SourcePath: sourcePath,
			JobID:      "track01",
			Splitter:   "demucs",
			Model:      "htdemucs",
		}
	}

	stagingEntries := func() []os.DirEntry {
		entries, err := os.ReadDir(filepath.Join(stemRoot, separation.StagingDirName))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		Expect(err).NotTo(HaveOccurred())
		return entries
	}

	BeforeEach(func() {
		ctx = context.Background()
		tempDir = MakeTempDir()
		stemRoot = filepath.Join(tempDir, "separated")
		uploadDir = filepath.Join(tempDir, "uploads")
		MakeDirs(tempDir, "separated")
		TouchFiles(uploadDir, "track01.wav")
		sourcePath = filepath.Join(uploadDir, "track01.wav")

		exec = dummy.NewExecutor(fakeDemucs("vocals", "drums", "bass", "other"))
		exec.Binaries["demucs"] = "/opt/bin/demucs"
		invoker = ExpectSuccess(separation.NewInvoker(exec, stemRoot, config.DefaultSplitterTable()))
	})

	AfterEach(func() {
		RemoveTempDir(tempDir)
	})

	It("promotes the tool's output and tags it with a run marker", func() {
		result := ExpectSuccess(invoker.Invoke(ctx, request()))

		outputDir := filepath.Join(stemRoot, "htdemucs", "track01")
		Expect(result.OutputDir).To(Equal(outputDir))
		Expect(result.ModelFolder).To(Equal("htdemucs"))
		Expect(filepath.Join(outputDir, "vocals.mp3")).To(BeARegularFile())

		marker, found := ExpectSuccess2(stemresolver.ReadRunMarker(outputDir))
		Expect(found).To(BeTrue())
		Expect(marker.Splitter).To(Equal("demucs"))
		Expect(marker.Model).To(Equal("htdemucs"))
		Expect(marker.LayoutVersion).To(Equal(config.LayoutVersion))

		Expect(stagingEntries()).To(BeEmpty())

		By("passing the templated arguments", func() {
			invocations := exec.Invocations()
			Expect(invocations).To(HaveLen(1))
			Expect(invocations[0].Name).To(Equal("/opt/bin/demucs"))
			Expect(invocations[0].Args[0]).To(Equal(sourcePath))
			Expect(invocations[0].Args).To(ContainElements("-n", "htdemucs", "--mp3", "--mp3-bitrate", "320"))
		})

		By("being resolvable afterwards", func() {
			resolver := ExpectSuccess(stemresolver.NewResolver(stemresolver.Config{
				StemRoot:  stemRoot,
				UploadDir: uploadDir,
				Table:     config.DefaultSplitterTable(),
			}))
			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.Stems).To(HaveLen(4))
			Expect(resolution.Run.Splitter).To(Equal("demucs"))
			Expect(resolution.Run.LayoutVersion).To(Equal(config.LayoutVersion))
		})
	})

	It("replaces an earlier run of the same job and model", func() {
		TouchFiles(stemRoot, "htdemucs/track01/guitar.mp3")

		ExpectSuccess(invoker.Invoke(ctx, request()))

		Expect(filepath.Join(stemRoot, "htdemucs", "track01", "guitar.mp3")).NotTo(BeAnExistingFile())
		Expect(filepath.Join(stemRoot, "htdemucs", "track01", "bass.mp3")).To(BeARegularFile())
	})

	It("puts an earlier run back when the staged output cannot be moved in", func() {
		TouchFiles(stemRoot, "htdemucs/track01/guitar.mp3")
		stagingRoot := filepath.Join(stemRoot, separation.StagingDirName, "run")
		MakeDirs(stagingRoot, ".")
		outputDir := filepath.Join(stemRoot, "htdemucs", "track01")

		err := separation.Promote(filepath.Join(stagingRoot, "htdemucs", "track01"), outputDir, stagingRoot)
		Expect(err).To(HaveOccurred())

		Expect(filepath.Join(outputDir, "guitar.mp3")).To(BeARegularFile())
		Expect(filepath.Join(stagingRoot, ".previous")).NotTo(BeAnExistingFile())
	})

	It("names the input after the job when the source file is named differently", func() {
		TouchFiles(uploadDir, "My Song.wav")
		req := request()
		req.SourcePath = filepath.Join(uploadDir, "My Song.wav")

		ExpectSuccess(invoker.Invoke(ctx, req))
		Expect(filepath.Join(stemRoot, "htdemucs", "track01", "drums.mp3")).To(BeARegularFile())
	})

	It("rejects unknown splitters and models", func() {
		req := request()
		req.Splitter = "openunmix"
		_, err := invoker.Invoke(ctx, req)
		Expect(markers.Is(err, separation.UnknownSplitter)).To(BeTrue())

		req = request()
		req.Model = "htdemucs_9000"
		_, err = invoker.Invoke(ctx, req)
		Expect(markers.Is(err, separation.UnknownModel)).To(BeTrue())

		Expect(exec.Invocations()).To(BeEmpty())
	})

	It("rejects job IDs that escape the stem root", func() {
		req := request()
		req.JobID = "../etc"
		_, err := invoker.Invoke(ctx, req)
		Expect(markers.Is(err, stementity.PathOutsideAllowedRoot)).To(BeTrue())
	})

	It("reports a missing binary", func() {
		delete(exec.Binaries, "demucs")
		_, err := invoker.Invoke(ctx, request())
		Expect(markers.Is(err, separation.ToolNotFound)).To(BeTrue())
	})

	It("surfaces stderr when the tool fails", func() {
		exec.Handler = func(_ context.Context, _ dummy.Invocation, _ io.Writer, stderr io.Writer) error {
			_, _ = io.WriteString(stderr, "RuntimeError: CUDA out of memory\n")
			return errors.New("exit status 1")
		}

		_, err := invoker.Invoke(ctx, request())
		Expect(markers.Is(err, separation.ToolInvocationFailed)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("CUDA out of memory"))
		Expect(stagingEntries()).To(BeEmpty())
	})

	It("fails when the tool exits cleanly without output", func() {
		exec.Handler = nil

		_, err := invoker.Invoke(ctx, request())
		Expect(markers.Is(err, separation.ToolInvocationFailed)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("output directory not found"))
		Expect(filepath.Join(stemRoot, "htdemucs", "track01")).NotTo(BeAnExistingFile())
	})

	It("promotes nothing when cancelled mid-run", func() {
		cancellable, cancel := context.WithCancel(ctx)
		exec.Handler = func(runCtx context.Context, inv dummy.Invocation, stdout io.Writer, stderr io.Writer) error {
			Expect(fakeDemucs("vocals")(runCtx, inv, stdout, stderr)).To(Succeed())
			cancel()
			<-runCtx.Done()
			return runCtx.Err()
		}

		_, err := invoker.Invoke(cancellable, request())
		Expect(err).To(MatchError(context.Canceled))
		Expect(filepath.Join(stemRoot, "htdemucs", "track01")).NotTo(BeAnExistingFile())
		Expect(stagingEntries()).To(BeEmpty())
	})

	It("lists splitters whose binaries are installed", func() {
		available := invoker.Available()
		Expect(available).To(HaveLen(1))
		Expect(available[0].ID).To(Equal("demucs"))
	})
})
