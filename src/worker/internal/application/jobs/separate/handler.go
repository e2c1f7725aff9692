package separate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
	"github.com/jasonlryan/demucs/src/shared/lib/keylock"
	"github.com/jasonlryan/demucs/src/shared/separation"
	"github.com/jasonlryan/demucs/src/shared/stem/entity"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	"github.com/jasonlryan/demucs/src/worker/internal/application/jobs/job_message"
	"github.com/jasonlryan/demucs/src/worker/internal/application/mirror"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "separate_job"
const ErrorMessage string = "Failed to separate the source audio into stems"

type JobParams struct {
	job_message.TaskIdentifier
	Splitter string `json:"splitter"`
	Model    string `json:"model"`
	Format   string `json:"format"`
}

//counterfeiter:generate . SeparateJobHandler
type SeparateJobHandler interface {
	HandleSeparateJob(ctx context.Context, message []byte, report job_message.Reporter) (JobParams, job_message.Result, error)
}

func NewJobHandler(invoker separation.Invoker, resolver stemresolver.Resolver, locker *keylock.Locker, mirror mirror.Mirror) JobHandler {
	return JobHandler{
		invoker:  invoker,
		resolver: resolver,
		locker:   locker,
		mirror:   mirror,
	}
}

type JobHandler struct {
	invoker  separation.Invoker
	resolver stemresolver.Resolver
	locker   *keylock.Locker
	mirror   mirror.Mirror
}

func (s JobHandler) HandleSeparateJob(ctx context.Context, message []byte, report job_message.Reporter) (JobParams, job_message.Result, error) {
	params, err := unmarshalMessage(message)
	if err != nil {
		return JobParams{}, job_message.Result{}, err
	}

	errctx := cerr.Field("job_params", params)

	report(5, "Waiting for other separations of this job")
	release, err := s.locker.Acquire(ctx, params.JobID, keylock.SeparationKind)
	if err != nil {
		return JobParams{}, job_message.Result{}, errctx.Wrap(err).Error("Failed to lock the job")
	}
	defer release()

	sourcePath, found, err := s.resolver.FindUpload(params.JobID)
	if err != nil {
		return JobParams{}, job_message.Result{}, errctx.Wrap(err).Error("Failed to look for the uploaded source")
	}
	if !found {
		err = mark.Message(stementity.JobNotFound, fmt.Sprintf("No upload found for job %s", params.JobID))
		return JobParams{}, job_message.Result{}, errctx.Wrap(err).Error("Nothing to separate")
	}

	report(10, fmt.Sprintf("Running %s (%s)", params.Splitter, params.Model))
	_, err = s.invoker.Invoke(ctx, separation.Request{
		SourcePath: sourcePath,
		JobID:      params.JobID,
		Splitter:   params.Splitter,
		Model:      params.Model,
		Format:     params.Format,
	})
	if err != nil {
		return JobParams{}, job_message.Result{}, errctx.Wrap(err).Error("Failed to separate the track")
	}

	report(90, "Collecting stems")
	result, err := job_message.CollectResult(ctx, s.resolver, s.mirror, params.JobID)
	if err != nil {
		return JobParams{}, job_message.Result{}, errctx.Wrap(err).Error("Failed to collect the separated stems")
	}

	return params, result, nil
}

func unmarshalMessage(message []byte) (JobParams, error) {
	params := JobParams{}
	err := json.Unmarshal(message, &params)
	if err != nil {
		return JobParams{}, cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("job_params", params)

	if params.TaskID == "" {
		return JobParams{}, errctx.Error("Missing task ID")
	}

	if params.JobID == "" {
		return JobParams{}, errctx.Error("Missing job ID")
	}

	if params.Splitter == "" || params.Model == "" {
		return JobParams{}, errctx.Error("Missing splitter or model")
	}

	return params, nil
}
