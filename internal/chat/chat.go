// Package chat defines the messaging surface the pipeline talks to. The
// Telegram client and the local console both implement Transport.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// File is a local file plus the name shown to the recipient, which never
// carries the job token used on disk.
type File struct {
	Path string
	Name string
}

type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) (MessageRef, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	SendVideo(ctx context.Context, chatID int64, file File, caption string, streaming bool) (MessageRef, error)
	SendDocument(ctx context.Context, chatID int64, file File, caption string) (MessageRef, error)
	CopyMessage(ctx context.Context, toChatID int64, from MessageRef) (MessageRef, error)
}

// FloodError is returned when the chat service asks the caller to back off.
type FloodError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *FloodError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *FloodError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether a send failure is worth retrying later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var flood *FloodError
	if errors.As(err, &flood) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
