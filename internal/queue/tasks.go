// Package queue carries leech requests from the bot to workers over asynq
// and keeps the small amount of shared state they need in Redis.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeLeechLink = "leech:link"

type LeechPayload struct {
	JobID           string `json:"job_id"`
	ChatID          int64  `json:"chat_id"`
	UserID          int64  `json:"user_id"`
	StatusMessageID int    `json:"status_message_id"`
	URL             string `json:"url"`
	Caption         string `json:"caption,omitempty"`
}

// NewLeechTask builds the task for one share link. The job id doubles as the
// asynq task id so a link cannot be queued twice under the same job.
func NewLeechTask(p LeechPayload) (*asynq.Task, error) {
	if p.JobID == "" || p.URL == "" {
		return nil, fmt.Errorf("leech task needs a job id and a url")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLeechLink, b,
		asynq.TaskID(p.JobID),
		asynq.MaxRetry(2),
		asynq.Timeout(3*time.Hour),
		asynq.Retention(24*time.Hour),
	), nil
}

func decodeLeech(t *asynq.Task) (LeechPayload, error) {
	var p LeechPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, err
	}
	if p.JobID == "" || p.URL == "" {
		return p, fmt.Errorf("payload is missing job id or url")
	}
	return p, nil
}
