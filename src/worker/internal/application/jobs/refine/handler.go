package refine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/jasonlryan/demucs/src/shared/lib/keylock"
	"github.com/jasonlryan/demucs/src/shared/refine"
	"github.com/jasonlryan/demucs/src/shared/stem/resolver"
	"github.com/jasonlryan/demucs/src/worker/internal/application/jobs/job_message"
	"github.com/jasonlryan/demucs/src/worker/internal/application/mirror"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "refine_job"
const ErrorMessage string = "Failed to split the stem into parts"

type JobParams struct {
	job_message.TaskIdentifier
	Parent string `json:"parent"`
}

//counterfeiter:generate . RefineJobHandler
type RefineJobHandler interface {
	HandleRefineJob(ctx context.Context, message []byte, report job_message.Reporter) (JobParams, job_message.Result, error)
}

func NewJobHandler(engine refine.Engine, resolver stemresolver.Resolver, locker *keylock.Locker, mirror mirror.Mirror, refiners ...refine.Refiner) JobHandler {
	byParent := map[string]refine.Refiner{}
	for _, refiner := range refiners {
		byParent[refiner.Parent()] = refiner
	}

	return JobHandler{
		engine:   engine,
		resolver: resolver,
		locker:   locker,
		mirror:   mirror,
		refiners: byParent,
	}
}

type JobHandler struct {
	engine   refine.Engine
	resolver stemresolver.Resolver
	locker   *keylock.Locker
	mirror   mirror.Mirror
	refiners map[string]refine.Refiner
}

func (r JobHandler) HandleRefineJob(ctx context.Context, message []byte, report job_message.Reporter) (JobParams, job_message.Result, error) {
	params, err := unmarshalMessage(message)
	if err != nil {
		return JobParams{}, job_message.Result{}, err
	}

	errctx := cerr.Field("job_params", params)

	refiner, ok := r.refiners[params.Parent]
	if !ok {
		return JobParams{}, job_message.Result{}, errctx.Error(fmt.Sprintf("No refiner for %s stems", params.Parent))
	}

	report(5, "Waiting for other refinements of this job")
	release, err := r.locker.Acquire(ctx, params.JobID, keylock.RefinementKind)
	if err != nil {
		return JobParams{}, job_message.Result{}, errctx.Wrap(err).Error("Failed to lock the job")
	}
	defer release()

	report(10, fmt.Sprintf("Splitting %s", params.Parent))
	if _, err := r.engine.Run(ctx, params.JobID, refiner); err != nil {
		return JobParams{}, job_message.Result{}, errctx.Wrap(err).Error("Failed to refine the stem")
	}

	report(90, "Collecting parts")
	result, err := job_message.CollectResult(ctx, r.resolver, r.mirror, params.JobID)
	if err != nil {
		return JobParams{}, job_message.Result{}, errctx.Wrap(err).Error("Failed to collect the refined parts")
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

	if params.Parent == "" {
		return JobParams{}, errctx.Error("Missing parent stem")
	}

	return params, nil
}
