package stemmanifest

import (
	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
)

const SuccessStatus = "success"

// Build turns a resolution into the wire manifest. Keys are never omitted:
// no stems is an empty list, no mix is null and no child splits is an empty
// object.
func Build(resolution stementity.Resolution) stementity.Manifest {
	jobID := resolution.Job.ID

	stems := []stementity.ManifestStem{}
	for _, stem := range resolution.Stems {
		stems = append(stems, stementity.ManifestStem{
			Name: stem.Name,
			URL:  stementity.StemAddress(jobID, stem.Name).URL(),
			Path: stem.Path,
		})
	}

	var mix *stementity.ManifestMix
	if resolution.Mix != nil {
		mix = &stementity.ManifestMix{
			URL:  stementity.MixAddress(jobID).URL(),
			Path: resolution.Mix.Path,
		}
	}

	childSplits := map[string][]stementity.ManifestChildSplit{}
	for parent, children := range resolution.ChildSplits {
		if len(children) == 0 {
			continue
		}

		wireChildren := []stementity.ManifestChildSplit{}
		for _, child := range children {
			wireChildren = append(wireChildren, stementity.ManifestChildSplit{
				Name:   child.Name,
				URL:    stementity.ChildAddress(jobID, parent, child.Name).URL(),
				Path:   child.Path,
				Parent: parent,
			})
		}
		childSplits[parent] = wireChildren
	}

	return stementity.Manifest{
		Status:      SuccessStatus,
		JobID:       jobID,
		Splitter:    resolution.Run.Splitter,
		Model:       resolution.Run.Model,
		OutputDir:   resolution.Run.OutputDir,
		Stems:       stems,
		Mix:         mix,
		ChildSplits: childSplits,
	}
}

// Entities reads stems, mix and child splits back out of a manifest, checking
// that every URL agrees with the entity it is attached to.
func Entities(manifest stementity.Manifest) ([]stementity.Stem, *stementity.Mix, map[string][]stementity.ChildSplit, error) {
	stems := []stementity.Stem{}
	for _, wireStem := range manifest.Stems {
		address, err := stementity.ParseAddress(wireStem.URL)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "Failed to parse stem URL")
		}

		if address.JobID != manifest.JobID || address.IsChild() || address.Name != wireStem.Name {
			return nil, nil, nil, errors.Newf("Stem URL %s does not match stem %s", wireStem.URL, wireStem.Name)
		}

		stems = append(stems, stementity.Stem{Name: wireStem.Name, Path: wireStem.Path})
	}

	var mix *stementity.Mix
	if manifest.Mix != nil {
		address, err := stementity.ParseAddress(manifest.Mix.URL)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "Failed to parse mix URL")
		}

		if !address.IsMix() || address.JobID != manifest.JobID {
			return nil, nil, nil, errors.Newf("Mix URL %s is not a mix address", manifest.Mix.URL)
		}

		mix = &stementity.Mix{Path: manifest.Mix.Path}
	}

	childSplits := map[string][]stementity.ChildSplit{}
	for parent, wireChildren := range manifest.ChildSplits {
		children := []stementity.ChildSplit{}
		for _, wireChild := range wireChildren {
			address, err := stementity.ParseAddress(wireChild.URL)
			if err != nil {
				return nil, nil, nil, errors.Wrap(err, "Failed to parse child split URL")
			}

			if address.JobID != manifest.JobID || address.Parent != parent || address.Name != wireChild.Name || wireChild.Parent != parent {
				return nil, nil, nil, errors.Newf("Child split URL %s does not match %s/%s", wireChild.URL, parent, wireChild.Name)
			}

			children = append(children, stementity.ChildSplit{
				Parent: parent,
				Name:   wireChild.Name,
				Path:   wireChild.Path,
			})
		}
		childSplits[parent] = children
	}

	return stems, mix, childSplits, nil
}
