package progress

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tanq16/teraleech/internal/chat"
)

type Sink interface {
	Publish(ctx context.Context, text string) error
}

type SinkFunc func(ctx context.Context, text string) error

func (f SinkFunc) Publish(ctx context.Context, text string) error {
	return f(ctx, text)
}

// ChatSink edits one status message in place.
type ChatSink struct {
	Transport chat.Transport
	ChatID    int64
	MessageID int
}

func (s ChatSink) Publish(ctx context.Context, text string) error {
	return s.Transport.EditMessageText(ctx, s.ChatID, s.MessageID, text)
}

// LogSink writes each update as a log line.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Publish(ctx context.Context, text string) error {
	s.Logger.Info().Str("op", "progress/log").Msg(text)
	return nil
}
