package stemresolver_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors/markers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/config"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	. "github.com/jasonlryan/demucs/src/shared/testing"
)

var _ = Describe("Resolver", func() {
	var (
		ctx       context.Context
		tempDir   string
		stemRoot  string
		uploadDir string
		resolver  stemresolver.Resolver
	)

	stemNames := func(resolution stementity.Resolution) []string {
		names := []string{}
		for _, stem := range resolution.Stems {
			names = append(names, stem.Name)
		}
		return names
	}

	stemPath := func(resolution stementity.Resolution, name string) string {
		stem, ok := resolution.Stem(name)
		ExpectWithOffset(1, ok).To(BeTrue())
		return RelPath(stemRoot, stem.Path)
	}

	BeforeEach(func() {
		ctx = context.Background()
		tempDir = MakeTempDir()
		stemRoot = filepath.Join(tempDir, "separated")
		uploadDir = filepath.Join(tempDir, "uploads")
		MakeDirs(tempDir, "separated", "uploads")

		resolver = ExpectSuccess(stemresolver.NewResolver(stemresolver.Config{
			StemRoot:  stemRoot,
			UploadDir: uploadDir,
			Table:     config.DefaultSplitterTable(),
		}))
	})

	AfterEach(func() {
		RemoveTempDir(tempDir)
	})

	Describe("A canonical four stem run", func() {
		BeforeEach(func() {
			TouchFiles(stemRoot,
				"htdemucs/track01/vocals.mp3",
				"htdemucs/track01/drums.mp3",
				"htdemucs/track01/bass.mp3",
				"htdemucs/track01/other.mp3",
			)
			TouchFiles(uploadDir, "track01.mp3")
		})

		It("finds exactly the four stems in catalog order", func() {
			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(stemNames(resolution)).To(Equal([]string{"vocals", "drums", "bass", "other"}))
			Expect(stemPath(resolution, "bass")).To(Equal("htdemucs/track01/bass.mp3"))
		})

		It("uses the uploaded source as the mix", func() {
			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.Mix).NotTo(BeNil())
			Expect(resolution.Mix.Path).To(Equal(filepath.Join(uploadDir, "track01.mp3")))
			Expect(resolution.Job.SourcePath).To(Equal(filepath.Join(uploadDir, "track01.mp3")))
		})

		It("has no child splits", func() {
			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.ChildSplits).To(BeEmpty())
		})

		It("identifies the run from the model folder", func() {
			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.Run.Splitter).To(Equal("demucs"))
			Expect(resolution.Run.Model).To(Equal("htdemucs"))
			Expect(resolution.Run.ModelFolder).To(Equal("htdemucs"))
			Expect(resolution.Run.OutputDir).To(Equal(filepath.Join(stemRoot, "htdemucs", "track01")))
			Expect(resolution.Run.LayoutVersion).To(Equal(0))
		})

		It("resolves the same way twice", func() {
			first := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			second := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(second).To(Equal(first))
		})

		It("omits a missing stem without failing", func() {
			Expect(os.Remove(filepath.Join(stemRoot, "htdemucs/track01/bass.mp3"))).To(Succeed())

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(stemNames(resolution)).To(Equal([]string{"vocals", "drums", "other"}))
		})
	})

	Describe("Precedence", func() {
		It("prefers mp3 when several extensions exist", func() {
			TouchFiles(stemRoot, "htdemucs/track01/vocals.wav", "htdemucs/track01/vocals.mp3")

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(stemPath(resolution, "vocals")).To(Equal("htdemucs/track01/vocals.mp3"))
		})

		It("prefers the canonical layout over the legacy layout", func() {
			TouchFiles(stemRoot, "track01/vocals.mp3", "htdemucs/track01/vocals.wav")

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(stemPath(resolution, "vocals")).To(Equal("htdemucs/track01/vocals.wav"))
		})

		It("prefers the most capable model folder", func() {
			TouchFiles(stemRoot, "htdemucs/track01/vocals.mp3", "htdemucs_6s/track01/vocals.mp3")

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(stemPath(resolution, "vocals")).To(Equal("htdemucs_6s/track01/vocals.mp3"))
			Expect(resolution.Run.ModelFolder).To(Equal("htdemucs_6s"))
		})

		It("fills stems missing from the canonical folder from other layouts", func() {
			TouchFiles(stemRoot, "htdemucs/track01/vocals.mp3", "track01/drums.wav")

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(stemPath(resolution, "drums")).To(Equal("track01/drums.wav"))
			Expect(resolution.Run.OutputDir).To(Equal(filepath.Join(stemRoot, "htdemucs", "track01")))
		})
	})

	Describe("Generic scan", func() {
		It("finds stems in any directory whose path names the job", func() {
			TouchFiles(stemRoot, "archive/2023/track01/vocals.flac")

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(stemPath(resolution, "vocals")).To(Equal("archive/2023/track01/vocals.flac"))
			Expect(resolution.Run.OutputDir).To(Equal(filepath.Join(stemRoot, "archive/2023/track01")))
		})

		It("does not borrow stems from a job whose ID extends this one", func() {
			TouchFiles(stemRoot,
				"htdemucs/track01/vocals.mp3",
				"htdemucs/track01/drums.mp3",
				"htdemucs/track01/bass.mp3",
				"htdemucs/track01/other.mp3",
				"htdemucs_6s/track010/guitar.mp3",
				"htdemucs_6s/track010/piano.mp3",
				"archive/track01-final/vocals/lead.wav",
			)

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(stemNames(resolution)).To(Equal([]string{"vocals", "drums", "bass", "other"}))
			Expect(resolution.ChildSplits).To(BeEmpty())

			other := ExpectSuccess(resolver.Resolve(ctx, "track010"))
			Expect(stemNames(other)).To(Equal([]string{"guitar", "piano"}))
		})

		It("does not treat a job without its own directory as found", func() {
			TouchFiles(stemRoot, "htdemucs/track010/vocals.mp3")

			_, err := resolver.Resolve(ctx, "track01")
			Expect(markers.Is(err, stementity.JobNotFound)).To(BeTrue())
		})

		It("never looks inside staging directories", func() {
			TouchFiles(stemRoot, ".staging/run-1/htdemucs/track01/vocals.mp3")

			_, err := resolver.Resolve(ctx, "track01")
			Expect(markers.Is(err, stementity.JobNotFound)).To(BeTrue())
		})
	})

	Describe("Mix", func() {
		It("falls back to a mixture file", func() {
			TouchFiles(stemRoot, "htdemucs/track01/vocals.mp3", "htdemucs/track01/mixture.wav", "htdemucs/track01/mix.mp3")

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(RelPath(stemRoot, resolution.Mix.Path)).To(Equal("htdemucs/track01/mixture.wav"))
		})

		It("falls back to legacy mix names", func() {
			TouchFiles(stemRoot, "htdemucs/track01/vocals.mp3", "htdemucs/track01/original.flac")

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(RelPath(stemRoot, resolution.Mix.Path)).To(Equal("htdemucs/track01/original.flac"))
		})

		It("ignores uploads for other jobs", func() {
			TouchFiles(stemRoot, "htdemucs/track01/vocals.mp3")
			TouchFiles(uploadDir, "track01-remix.mp3", "track01.txt")

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.Mix).To(BeNil())
		})
	})

	Describe("Child splits", func() {
		It("finds children next to the parent stem", func() {
			TouchFiles(stemRoot,
				"htdemucs/track01/vocals.mp3",
				"htdemucs/track01/vocals/backing.wav",
				"htdemucs/track01/vocals/lead.wav",
			)

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.ChildSplits).To(HaveKey("vocals"))

			children := resolution.ChildSplits["vocals"]
			Expect(children).To(HaveLen(2))
			Expect(children[0].Name).To(Equal("lead"))
			Expect(children[1].Name).To(Equal("backing"))
			Expect(children[0].Parent).To(Equal("vocals"))
		})

		It("reads legacy split directories only when nothing else was found", func() {
			TouchFiles(stemRoot,
				"htdemucs/track01/drums.mp3",
				"drum_splits/track01/kick.wav",
				"drum_splits/track01/snare.wav",
			)

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			children := resolution.ChildSplits["drums"]
			Expect(children).To(HaveLen(2))
			Expect(RelPath(stemRoot, children[0].Path)).To(Equal("drum_splits/track01/kick.wav"))
		})

		It("does not mix legacy children into a current split", func() {
			TouchFiles(stemRoot,
				"htdemucs/track01/vocals.mp3",
				"htdemucs/track01/vocals/lead.wav",
				"vocal_splits/track01/backing.wav",
			)

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.ChildSplits["vocals"]).To(HaveLen(1))
		})

		It("skips children of a parent that was not resolved", func() {
			TouchFiles(stemRoot,
				"htdemucs/track01/vocals.mp3",
				"htdemucs/track01/drums/kick.wav",
			)

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.ChildSplits).NotTo(HaveKey("drums"))
		})
	})

	Describe("Run marker", func() {
		It("takes the run details from the marker", func() {
			TouchFiles(stemRoot, "htdemucs_ft/track01/vocals.mp3")
			err := stemresolver.WriteRunMarker(filepath.Join(stemRoot, "htdemucs_ft", "track01"), stementity.RunMarker{
				LayoutVersion: config.LayoutVersion,
				JobID:         "track01",
				Splitter:      "demucs",
				Model:         "htdemucs_ft",
				ModelFolder:   "htdemucs_ft",
				CreatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			})
			Expect(err).NotTo(HaveOccurred())

			resolution := ExpectSuccess(resolver.Resolve(ctx, "track01"))
			Expect(resolution.Run.Model).To(Equal("htdemucs_ft"))
			Expect(resolution.Run.LayoutVersion).To(Equal(config.LayoutVersion))
		})
	})

	Describe("Failures", func() {
		It("reports a job with no output anywhere", func() {
			TouchFiles(uploadDir, "track01.mp3")

			_, err := resolver.Resolve(ctx, "track01")
			Expect(markers.Is(err, stementity.JobNotFound)).To(BeTrue())
		})

		DescribeTable("rejects job IDs that could escape the root",
			func(jobID string) {
				_, err := resolver.Resolve(ctx, jobID)
				Expect(markers.Is(err, stementity.PathOutsideAllowedRoot)).To(BeTrue())
			},
			Entry("empty", ""),
			Entry("parent", ".."),
			Entry("nested", "../etc"),
			Entry("hidden", ".staging"),
		)

		It("rejects a stem that links outside the root", func() {
			outside := filepath.Join(tempDir, "secret.mp3")
			TouchFiles(tempDir, "secret.mp3")
			MakeDirs(stemRoot, "htdemucs/track01")
			Expect(os.Symlink(outside, filepath.Join(stemRoot, "htdemucs/track01/vocals.mp3"))).To(Succeed())

			_, err := resolver.Resolve(ctx, "track01")
			Expect(markers.Is(err, stementity.PathOutsideAllowedRoot)).To(BeTrue())
		})
	})

	Describe("Addressing", func() {
		BeforeEach(func() {
			TouchFiles(stemRoot,
				"htdemucs/track01/vocals.mp3",
				"htdemucs/track01/vocals/lead.wav",
			)
			TouchFiles(uploadDir, "track01.wav")
		})

		It("locates a stem", func() {
			path := ExpectSuccess(resolver.Locate(ctx, stementity.StemAddress("track01", "vocals")))
			Expect(RelPath(stemRoot, path)).To(Equal("htdemucs/track01/vocals.mp3"))
		})

		It("locates a child split", func() {
			path := ExpectSuccess(resolver.Locate(ctx, stementity.ChildAddress("track01", "vocals", "lead")))
			Expect(RelPath(stemRoot, path)).To(Equal("htdemucs/track01/vocals/lead.wav"))
		})

		It("locates the mix", func() {
			path := ExpectSuccess(resolver.Locate(ctx, stementity.MixAddress("track01")))
			Expect(path).To(Equal(filepath.Join(uploadDir, "track01.wav")))
		})

		It("reports a missing stem", func() {
			_, err := resolver.Locate(ctx, stementity.StemAddress("track01", "piano"))
			Expect(markers.Is(err, stementity.StemNotFound)).To(BeTrue())
		})

		It("reports a missing child split", func() {
			_, err := resolver.Locate(ctx, stementity.ChildAddress("track01", "vocals", "backing"))
			Expect(markers.Is(err, stementity.StemNotFound)).To(BeTrue())
		})
	})
})
