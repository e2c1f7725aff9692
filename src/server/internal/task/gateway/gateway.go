package taskgateway

import (
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/jasonlryan/demucs/src/server/internal/errors/api"
	"github.com/jasonlryan/demucs/src/server/internal/errors/gateway"
	"github.com/jasonlryan/demucs/src/server/internal/lib/request"
	"github.com/jasonlryan/demucs/src/server/internal/task/usecase"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
)

type Gateway struct {
	usecase taskusecase.Usecase
}

func NewGateway(usecase taskusecase.Usecase) Gateway {
	return Gateway{
		usecase: usecase,
	}
}

func (g Gateway) Separate(c echo.Context, jobID string) error {
	ctx := request.Context(c)

	separationRequest := taskusecase.SeparationRequest{}
	if err := c.Bind(&separationRequest); err != nil && !errors.Is(err, io.EOF) {
		err = errors.Wrap(err, "Failed to bind request body to separation request")
		apiErr := api.CommitError(err,
			api.BadRequestDataCode,
			"The separation options were malformed")
		return gateway.ErrorResponse(c, apiErr)
	}

	task, apiErr := g.usecase.RequestSeparation(ctx, jobID, separationRequest)
	if apiErr != nil {
		apiErr = api.WrapError(apiErr, "Failed to request separation")
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusAccepted, task)
}

func (g Gateway) SplitVocals(c echo.Context, jobID string) error {
	ctx := request.Context(c)

	task, apiErr := g.usecase.RequestVocalSplit(ctx, jobID)
	return accepted(c, task, apiErr)
}

func (g Gateway) SplitDrums(c echo.Context, jobID string) error {
	ctx := request.Context(c)

	task, apiErr := g.usecase.RequestDrumSplit(ctx, jobID)
	return accepted(c, task, apiErr)
}

func (g Gateway) GetTask(c echo.Context, taskID string) error {
	ctx := request.Context(c)

	task, apiErr := g.usecase.GetTask(ctx, taskID)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, task)
}

func (g Gateway) CancelTask(c echo.Context, taskID string) error {
	ctx := request.Context(c)

	task, apiErr := g.usecase.CancelTask(ctx, taskID)
	if apiErr != nil {
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusOK, task)
}

func accepted(c echo.Context, task taskentity.Task, apiErr *api.Error) error {
	if apiErr != nil {
		apiErr = api.WrapError(apiErr, "Failed to request refinement")
		return gateway.ErrorResponse(c, apiErr)
	}

	return c.JSON(http.StatusAccepted, task)
}
