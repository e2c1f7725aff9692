package stementity

import "github.com/cockroachdb/errors/domains"

var (
	JobNotFound            = domains.New("job_not_found")
	StemNotFound           = domains.New("stem_not_found")
	PathOutsideAllowedRoot = domains.New("path_outside_allowed_root")
	InvalidAudioFormat     = domains.New("invalid_audio_format")
	PathNotFound           = domains.New("path_not_found")
	NotADirectory          = domains.New("not_a_directory")
)
