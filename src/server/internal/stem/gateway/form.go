package stemgateway

import (
	"mime/multipart"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/jasonlryan/demucs/src/server/internal/errors/api"
)

func formFile(c echo.Context) (*multipart.FileHeader, *api.Error) {
	fileHeader, err := c.FormFile(FileField)
	if err == nil {
		return fileHeader, nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
		return nil, api.CommitError(errors.Wrap(err, "Upload exceeds the size limit"),
			api.PayloadTooLargeCode,
			"The file is too large")
	}

	return nil, api.CommitError(errors.Wrap(err, "Failed to read the uploaded file"),
		api.BadRequestDataCode,
		"No file provided")
}
