package stemgateway

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/jasonlryan/demucs/src/server/internal/errors/api"
	"github.com/jasonlryan/demucs/src/server/internal/errors/gateway"
	"github.com/jasonlryan/demucs/src/server/internal/lib/request"
	"github.com/jasonlryan/demucs/src/server/internal/stem/usecase"
	"github.com/jasonlryan/demucs/src/shared/stem/manifest"
)

const (
	FileField     = "file"
	StemNameField = "stem_name"
)

type PathRequest struct {
	Path string `json:"path"`
}

type Gateway struct {
	usecase stemusecase.Usecase
}

func NewGateway(usecase stemusecase.Usecase) Gateway {
	return Gateway{
		usecase: usecase,
	}
}

func (g Gateway) GetSplitters(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    stemmanifest.SuccessStatus,
		"splitters": g.usecase.Splitters(),
	})
}

func (g Gateway) GetManifest(c echo.Context, jobID string) error {
	ctx := request.Context(c)

	manifest, apiErr := g.usecase.Manifest(ctx, jobID)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, manifest)
}

func (g Gateway) ServeStem(c echo.Context, jobID string, stemPath string) error {
	ctx := request.Context(c)

	path, apiErr := g.usecase.LocateFile(ctx, jobID, stemPath)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.File(path)
}

func (g Gateway) Upload(c echo.Context) error {
	fileHeader, apiErr := formFile(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return gateway.ErrorResponse(c, api.CommitError(errors.Wrap(err, "Failed to open uploaded file"),
			api.BadRequestDataCode,
			"The uploaded file could not be read"))
	}
	defer file.Close()

	result, apiErr := g.usecase.Upload(fileHeader.Filename, file)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, result)
}

func (g Gateway) AddStem(c echo.Context, jobID string) error {
	fileHeader, apiErr := formFile(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return gateway.ErrorResponse(c, api.CommitError(errors.Wrap(err, "Failed to open uploaded file"),
			api.BadRequestDataCode,
			"The uploaded file could not be read"))
	}
	defer file.Close()

	result, apiErr := g.usecase.AddStem(jobID, c.FormValue(StemNameField), fileHeader.Filename, file)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, result)
}

func (g Gateway) Cleanup(c echo.Context, jobID string) error {
	if apiErr := g.usecase.Cleanup(jobID); apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  stemmanifest.SuccessStatus,
		"message": "Cleanup completed",
	})
}

func (g Gateway) Analyze(c echo.Context, jobID string) error {
	ctx := request.Context(c)

	labels, apiErr := g.usecase.Analyze(ctx, jobID)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": stemmanifest.SuccessStatus,
		"labels": labels,
	})
}

func (g Gateway) LoadProject(c echo.Context) error {
	ctx := request.Context(c)

	pathRequest, apiErr := bindPath(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	manifest, apiErr := g.usecase.LoadProject(ctx, pathRequest.Path)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, manifest)
}

func (g Gateway) BrowseFolders(c echo.Context) error {
	pathRequest, apiErr := bindPath(c)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	folders, apiErr := g.usecase.BrowseFolders(pathRequest.Path)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"folders": folders,
	})
}

func bindPath(c echo.Context) (PathRequest, *api.Error) {
	pathRequest := PathRequest{}
	if err := c.Bind(&pathRequest); err != nil {
		err = errors.Wrap(err, "Failed to bind request body to path request")
		return PathRequest{}, api.CommitError(err,
			api.BadRequestDataCode,
			"The request body must be JSON with a path")
	}

	if pathRequest.Path == "" {
		return PathRequest{}, api.CommitError(errors.New("Empty path"),
			api.BadRequestDataCode,
			"No folder path provided")
	}

	return pathRequest, nil
}
