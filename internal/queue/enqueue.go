package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type activeSetter interface {
	Set(ctx context.Context, userID int64, jobID string) error
}

type Enqueuer struct {
	client taskClient
	active activeSetter
}

func NewEnqueuer(client *asynq.Client, active *ActiveIndex) *Enqueuer {
	e := &Enqueuer{client: client}
	if active != nil {
		e.active = active
	}
	return e
}

func (e *Enqueuer) Enqueue(ctx context.Context, p LeechPayload) error {
	task, err := NewLeechTask(p)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("error enqueueing %s: %w", p.URL, err)
	}
	log.Info().Str("op", "queue/enqueue").Str("job", p.JobID).Msgf("queued %s on %s", p.URL, info.Queue)
	if e.active != nil {
		if err := e.active.Set(ctx, p.UserID, p.JobID); err != nil {
			log.Warn().Str("op", "queue/enqueue").Str("job", p.JobID).Err(err).Msg("could not index active job")
		}
	}
	return nil
}
