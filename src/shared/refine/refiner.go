package refine

import (
	"context"

	"github.com/cockroachdb/errors/domains"
	"github.com/jasonlryan/demucs/src/shared/audio"
)

var RefinementFailed = domains.New("refinement_failed")

// Part is one named output of a refiner.
type Part struct {
	Name  string
	Audio audio.Buffer
}

// Refiner decomposes one parent stem into named parts.
type Refiner interface {
	Parent() string
	Parts() []string
	Refine(ctx context.Context, buffer audio.Buffer) ([]Part, error)
}
