package stementity_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	. "github.com/jasonlryan/demucs/src/shared/testing"
)

var _ = Describe("Address", func() {
	DescribeTable("round trips through its URL",
		func(address stementity.Address, url string) {
			Expect(address.URL()).To(Equal(url))
			Expect(ExpectSuccess(stementity.ParseAddress(url))).To(Equal(address))
		},
		Entry("stem", stementity.StemAddress("track01", "vocals"), "/api/stems/track01/vocals"),
		Entry("child", stementity.ChildAddress("track01", "drums", "kick"), "/api/stems/track01/drums/kick"),
		Entry("mix", stementity.MixAddress("track01"), "/api/stems/track01/mix"),
	)

	It("parses a route remainder without the prefix", func() {
		address := ExpectSuccess(stementity.ParseAddress("track01/vocals/lead"))
		Expect(address).To(Equal(stementity.ChildAddress("track01", "vocals", "lead")))
	})

	It("recognises the mix", func() {
		Expect(stementity.MixAddress("track01").IsMix()).To(BeTrue())
		Expect(stementity.ChildAddress("track01", "vocals", "mix").IsMix()).To(BeFalse())
	})

	DescribeTable("rejects malformed addresses",
		func(url string) {
			_, err := stementity.ParseAddress(url)
			Expect(err).To(HaveOccurred())
		},
		Entry("job only", "/api/stems/track01"),
		Entry("too deep", "/api/stems/track01/a/b/c"),
		Entry("traversal", "/api/stems/../vocals"),
		Entry("empty segment", "/api/stems/track01//vocals"),
	)
})
