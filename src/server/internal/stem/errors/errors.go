package stemerrors

import (
	"github.com/jasonlryan/demucs/src/server/internal/errors/api"
)

const (
	JobNotFoundCode        = api.ErrorCode("job_not_found")
	StemNotFoundCode       = api.ErrorCode("stem_not_found")
	PathOutsideRootCode    = api.ErrorCode("path_outside_allowed_root")
	InvalidAudioFormatCode = api.ErrorCode("invalid_audio_format")
	PathNotFoundCode       = api.ErrorCode("path_not_found")
	NotADirectoryCode      = api.ErrorCode("not_a_directory")
)
