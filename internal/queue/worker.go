package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/cancel"
	"github.com/tanq16/teraleech/internal/downloader"
	"github.com/tanq16/teraleech/internal/pipeline"
	"github.com/tanq16/teraleech/internal/uploader"
)

type Runner interface {
	Handle(ctx context.Context, req pipeline.Request) (pipeline.Summary, error)
}

type CancelStore interface {
	cancel.Store
	Clear(ctx context.Context, jobID string) error
}

type activeFinisher interface {
	Finish(ctx context.Context, userID int64, jobID string) error
}

type HandlerOptions struct {
	Registry     *cancel.Registry
	Store        CancelStore // optional
	Active       *ActiveIndex
	PollInterval time.Duration
}

// Handler runs leech tasks through the pipeline.
type Handler struct {
	runner   Runner
	registry *cancel.Registry
	store    CancelStore
	active   activeFinisher
	poll     time.Duration
}

func NewHandler(runner Runner, opts HandlerOptions) *Handler {
	h := &Handler{runner: runner, registry: opts.Registry, store: opts.Store, poll: opts.PollInterval}
	if h.registry == nil {
		h.registry = cancel.NewRegistry()
	}
	if opts.Active != nil {
		h.active = opts.Active
	}
	if h.poll <= 0 {
		h.poll = 2 * time.Second
	}
	return h
}

// ProcessTask returns nil or a SkipRetry error for every outcome the user has
// already been told about, except transient upload failures. Those are
// retried and the ledger keeps already delivered files from being resent.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := decodeLeech(t)
	if err != nil {
		return fmt.Errorf("bad %s payload: %v: %w", TypeLeechLink, err, asynq.SkipRetry)
	}
	logger := log.With().Str("job", p.JobID).Logger()

	tok := h.registry.Register(p.JobID)
	defer h.registry.Release(p.JobID)
	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	if h.store != nil {
		go cancel.Watch(watchCtx, h.store, p.JobID, tok, h.poll)
	}
	defer h.finish(p)

	start := time.Now()
	summary, err := h.runner.Handle(ctx, pipeline.Request{
		JobID:           p.JobID,
		ChatID:          p.ChatID,
		StatusMessageID: p.StatusMessageID,
		ShareURL:        p.URL,
		Caption:         p.Caption,
		Cancel:          tok,
	})
	if err == nil {
		logger.Info().Str("op", "queue/worker").Msgf("delivered %d file(s) in %s", summary.Files, time.Since(start).Round(time.Second))
		return nil
	}
	if retryable(err) {
		logger.Warn().Str("op", "queue/worker").Err(err).Msg("transient failure, task will be retried")
		return err
	}
	logger.Error().Str("op", "queue/worker").Err(err).Msg("job failed")
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

func (h *Handler) finish(p LeechPayload) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	if h.store != nil {
		if err := h.store.Clear(ctx, p.JobID); err != nil {
			log.Warn().Str("op", "queue/worker").Str("job", p.JobID).Err(err).Msg("could not clear cancel flag")
		}
	}
	if h.active != nil {
		if err := h.active.Finish(ctx, p.UserID, p.JobID); err != nil {
			log.Warn().Str("op", "queue/worker").Str("job", p.JobID).Err(err).Msg("could not clear active job")
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, downloader.ErrCancelled) {
		return false
	}
	var upErr *uploader.UploadError
	return errors.As(err, &upErr) && upErr.Transient
}

// NewServer builds the asynq server and mux for the worker process.
func NewServer(redisOpt asynq.RedisClientOpt, concurrency int, h *Handler) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Debug().Str("op", "queue/server").Str("type", task.Type()).Err(err).Msg("task error")
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeLeechLink, h)
	return srv, mux
}
