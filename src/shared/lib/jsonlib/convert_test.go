package jsonlib_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/lib/jsonlib"
	. "github.com/jasonlryan/demucs/src/shared/testing"
)

type record struct {
	ID       string   `json:"identifier"`
	Progress int      `json:"progress"`
	Parts    []string `json:"parts"`
}

var _ = Describe("Convert", func() {
	var (
		original record
	)

	BeforeEach(func() {
		original = record{
			ID:       "abc",
			Progress: 40,
			Parts:    []string{"lead", "backing"},
		}
	})

	It("uses json field names as map keys", func() {
		m := ExpectSuccess(jsonlib.StructToMap(original))
		Expect(m).To(HaveKeyWithValue("identifier", "abc"))
		Expect(m).To(HaveKey("progress"))
		Expect(m).NotTo(HaveKey("ID"))
	})

	It("restores the struct from its map", func() {
		m := ExpectSuccess(jsonlib.StructToMap(original))
		restored := ExpectSuccess(jsonlib.MapToStruct[record](m))
		Expect(restored).To(Equal(original))
	})

	It("fails on a map with mismatched types", func() {
		_, err := jsonlib.MapToStruct[record](map[string]any{"progress": "lots"})
		Expect(err).To(HaveOccurred())
	})
})
