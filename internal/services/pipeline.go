package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/recipenow/recipenow-backend/internal/data/repos"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// ErrPipelineBusy rejects an enqueue while any stage for the same asset is
// queued or running. At most one pipeline is in flight per asset.
var ErrPipelineBusy = errors.New("a pipeline is already in flight for this asset")

// ErrJobFinished rejects cancellation of a job that already reached a
// terminal status.
var ErrJobFinished = errors.New("job already finished")

var recipeJobTypes = []string{
	types.JobTypeRecipeIngest,
	types.JobTypeRecipeExtract,
	types.JobTypeRecipeNormalize,
}

type PipelineService interface {
	// Enqueue creates a queued job_run for the asset. Chain stages call this
	// after their own transaction commits, never inside it.
	Enqueue(dbc dbctx.Context, userID uuid.UUID, jobType string, assetID uuid.UUID, payload map[string]any) (*types.JobRun, error)
	GetJob(dbc dbctx.Context, userID, jobID uuid.UUID) (*types.JobRun, error)
	LatestForAsset(dbc dbctx.Context, userID, assetID uuid.UUID, jobType string) (*types.JobRun, error)
	// Cancel flips a queued or running job to canceled. A running stage is not
	// interrupted mid-flight; the runtime refuses to write results for a
	// canceled row and no follow-up stage is enqueued.
	Cancel(dbc dbctx.Context, userID, jobID uuid.UUID) (*types.JobRun, error)
}

type pipelineService struct {
	log    *logger.Logger
	jobs   repos.JobRunRepo
	notify JobNotifier
}

func NewPipelineService(jobs repos.JobRunRepo, notify JobNotifier, baseLog *logger.Logger) PipelineService {
	return &pipelineService{
		log:    baseLog.With("service", "PipelineService"),
		jobs:   jobs,
		notify: notify,
	}
}

func (s *pipelineService) Enqueue(dbc dbctx.Context, userID uuid.UUID, jobType string, assetID uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if userID == uuid.Nil || assetID == uuid.Nil {
		return nil, fmt.Errorf("user and asset required")
	}

	busy, err := s.jobs.ExistsRunnable(dbc, userID, recipeJobTypes, types.EntityTypeMediaAsset, &assetID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrPipelineBusy
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["asset_id"] = assetID.String()
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	entityID := assetID
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: userID,
		JobType:     jobType,
		EntityType:  types.EntityTypeMediaAsset,
		EntityID:    &entityID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(raw),
	}
	created, err := s.jobs.Create(dbc, []*types.JobRun{job})
	if err != nil {
		return nil, err
	}
	s.log.Info("job enqueued", "job_type", jobType, "asset_id", assetID, "job_id", job.ID)
	if s.notify != nil {
		s.notify.JobQueued(userID, created[0])
	}
	return created[0], nil
}

func (s *pipelineService) GetJob(dbc dbctx.Context, userID, jobID uuid.UUID) (*types.JobRun, error) {
	rows, err := s.jobs.GetByIDs(dbc, []uuid.UUID{jobID})
	if err != nil {
		return nil, err
	}
	for _, j := range rows {
		if j.OwnerUserID == userID {
			return j, nil
		}
	}
	return nil, nil
}

func (s *pipelineService) LatestForAsset(dbc dbctx.Context, userID, assetID uuid.UUID, jobType string) (*types.JobRun, error) {
	return s.jobs.GetLatestByEntity(dbc, userID, types.EntityTypeMediaAsset, assetID, jobType)
}

func (s *pipelineService) Cancel(dbc dbctx.Context, userID, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetJob(dbc, userID, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	ok, err := s.jobs.UpdateFieldsUnlessStatus(dbc, job.ID,
		[]string{types.JobStatusSucceeded, types.JobStatusFailed, types.JobStatusCanceled},
		map[string]interface{}{"status": types.JobStatusCanceled, "stage": "canceled"})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrJobFinished
	}
	s.log.Info("job canceled", "job_id", jobID, "user_id", userID)
	job.Status = types.JobStatusCanceled
	job.Stage = "canceled"
	return job, nil
}
