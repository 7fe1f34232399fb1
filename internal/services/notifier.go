package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/recipenow/recipenow-backend/internal/clients/redis"
	types "github.com/recipenow/recipenow-backend/internal/domain"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

// JobNotifier fans job lifecycle events out to clients. Failures to notify are
// logged and swallowed; job state in the database is the source of truth.
type JobNotifier interface {
	JobQueued(userID uuid.UUID, job *types.JobRun)
	JobProgress(userID uuid.UUID, job *types.JobRun, stage string, pct int, msg string)
	JobFailed(userID uuid.UUID, job *types.JobRun, stage string, msg string)
	JobDone(userID uuid.UUID, job *types.JobRun)
}

type redisJobNotifier struct {
	log *logger.Logger
	bus redisclient.JobBus
}

func NewJobNotifier(bus redisclient.JobBus, baseLog *logger.Logger) JobNotifier {
	return &redisJobNotifier{
		log: baseLog.With("service", "JobNotifier"),
		bus: bus,
	}
}

func (n *redisJobNotifier) publish(userID uuid.UUID, job *types.JobRun, status, stage string, progress int, errMsg string) {
	if n.bus == nil || job == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev := redisclient.JobEvent{
		JobID:    job.ID,
		UserID:   userID,
		JobType:  job.JobType,
		EntityID: job.EntityID,
		Status:   status,
		Stage:    stage,
		Progress: progress,
		Error:    errMsg,
	}
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("job event publish failed", "job_id", job.ID, "error", err)
	}
}

func (n *redisJobNotifier) JobQueued(userID uuid.UUID, job *types.JobRun) {
	n.publish(userID, job, types.JobStatusQueued, job.Stage, 0, "")
}

func (n *redisJobNotifier) JobProgress(userID uuid.UUID, job *types.JobRun, stage string, pct int, msg string) {
	n.publish(userID, job, types.JobStatusRunning, stage, pct, "")
}

func (n *redisJobNotifier) JobFailed(userID uuid.UUID, job *types.JobRun, stage string, msg string) {
	n.publish(userID, job, types.JobStatusFailed, stage, job.Progress, msg)
}

func (n *redisJobNotifier) JobDone(userID uuid.UUID, job *types.JobRun) {
	n.publish(userID, job, types.JobStatusSucceeded, job.Stage, 100, "")
}

// NopNotifier is used in tests and when redis is not configured.
type NopNotifier struct{}

func (NopNotifier) JobQueued(uuid.UUID, *types.JobRun)                       {}
func (NopNotifier) JobProgress(uuid.UUID, *types.JobRun, string, int, string) {}
func (NopNotifier) JobFailed(uuid.UUID, *types.JobRun, string, string)        {}
func (NopNotifier) JobDone(uuid.UUID, *types.JobRun)                          {}
