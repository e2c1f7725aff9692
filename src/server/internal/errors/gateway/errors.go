package gateway

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/jasonlryan/demucs/src/server/api_error"
	"github.com/jasonlryan/demucs/src/server/internal/errors/api"
	"github.com/jasonlryan/demucs/src/server/internal/stem/errors"
	"github.com/jasonlryan/demucs/src/server/internal/task/errors"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
)

var httpStatusCodeMap = map[api.ErrorCode]int{
	api.DefaultErrorCode:               http.StatusInternalServerError,
	api.BadRequestDataCode:             http.StatusBadRequest,
	api.PayloadTooLargeCode:            http.StatusRequestEntityTooLarge,
	api.QueueUnavailableCode:           http.StatusServiceUnavailable,
	stemerrors.JobNotFoundCode:         http.StatusNotFound,
	stemerrors.StemNotFoundCode:        http.StatusNotFound,
	stemerrors.PathOutsideRootCode:     http.StatusBadRequest,
	stemerrors.InvalidAudioFormatCode:  http.StatusBadRequest,
	stemerrors.PathNotFoundCode:        http.StatusNotFound,
	stemerrors.NotADirectoryCode:       http.StatusBadRequest,
	taskerrors.TaskNotFoundCode:        http.StatusNotFound,
	taskerrors.TaskFinishedCode:        http.StatusConflict,
	taskerrors.UnknownSplitterCode:     http.StatusBadRequest,
	taskerrors.UnknownModelCode:        http.StatusBadRequest,
	taskerrors.SplitterUnavailableCode: http.StatusBadRequest,
}

func ErrorResponse(c echo.Context, err *api.Error) error {
	statusCode, ok := httpStatusCodeMap[err.ErrorCode]
	if !ok {
		msg := fmt.Sprintf("Error code %s has no HTTP status code mapping", err.ErrorCode)
		panic(msg)
	}

	if statusCode >= http.StatusInternalServerError {
		cerr.Log(err.InternalError)
	}

	return c.JSON(statusCode, api_error.JSONAPIError{
		Code:         string(err.ErrorCode),
		Msg:          err.UserMessage,
		ErrorDetails: err.Error(),
	})
}
