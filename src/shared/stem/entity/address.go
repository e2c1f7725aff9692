package stementity

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

const StemURLPrefix = "/api/stems/"

// Address identifies a stem, a child split or the mix of a job.
// Parent is empty for top level stems and the mix.
type Address struct {
	JobID  string
	Parent string
	Name   string
}

func StemAddress(jobID string, name string) Address {
	return Address{JobID: jobID, Name: name}
}

func ChildAddress(jobID string, parent string, name string) Address {
	return Address{JobID: jobID, Parent: parent, Name: name}
}

func MixAddress(jobID string) Address {
	return Address{JobID: jobID, Name: MixName}
}

func (a Address) IsMix() bool {
	return a.Parent == "" && a.Name == MixName
}

func (a Address) IsChild() bool {
	return a.Parent != ""
}

func (a Address) URL() string {
	if a.IsChild() {
		return fmt.Sprintf("%s%s/%s/%s", StemURLPrefix, a.JobID, a.Parent, a.Name)
	}

	return fmt.Sprintf("%s%s/%s", StemURLPrefix, a.JobID, a.Name)
}

// ParseAddress reverses URL. The route prefix is optional so the remainder
// captured by a router can be parsed too.
func ParseAddress(url string) (Address, error) {
	rest := strings.TrimPrefix(url, StemURLPrefix)
	rest = strings.Trim(rest, "/")

	segments := strings.Split(rest, "/")
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			return Address{}, errors.Newf("Malformed stem address %q", url)
		}
	}

	switch len(segments) {
	case 2:
		return StemAddress(segments[0], segments[1]), nil
	case 3:
		return ChildAddress(segments[0], segments[1], segments[2]), nil
	default:
		return Address{}, errors.Newf("Stem address %q must have 2 or 3 segments", url)
	}
}
