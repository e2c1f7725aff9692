package taskerrors

import (
	"github.com/jasonlryan/demucs/src/server/internal/errors/api"
)

const (
	TaskNotFoundCode        = api.ErrorCode("task_not_found")
	TaskFinishedCode        = api.ErrorCode("task_finished")
	UnknownSplitterCode     = api.ErrorCode("unknown_splitter")
	UnknownModelCode        = api.ErrorCode("unknown_model")
	SplitterUnavailableCode = api.ErrorCode("splitter_unavailable")
)
