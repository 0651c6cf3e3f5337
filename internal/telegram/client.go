// Package telegram adapts the Bot API to chat.Transport and runs the update
// loop that turns share links into queued jobs.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tanq16/teraleech/internal/chat"
)

// API is the part of *tgbotapi.BotAPI the client uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

var _ chat.Transport = (*Client)(nil)

type Client struct {
	api API
}

func NewClient(api API) *Client {
	return &Client{api: api}
}

// NewBotAPI connects to the Bot API, or to a self-hosted server when endpoint
// is set. Uploads can take minutes, so the HTTP timeout follows uploadTimeout.
func NewBotAPI(token, endpoint string, uploadTimeout time.Duration) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if uploadTimeout <= 0 {
		uploadTimeout = 10 * time.Minute
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: uploadTimeout})
	if err != nil {
		return nil, fmt.Errorf("error connecting to telegram: %w", err)
	}
	return bot, nil
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	sent, err := c.api.Send(msg)
	if err != nil {
		return chat.MessageRef{}, mapError(err)
	}
	return chat.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.DisableWebPagePreview = true
	if _, err := c.api.Request(edit); err != nil {
		if notModified(err) {
			return nil
		}
		return mapError(err)
	}
	return nil
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, file chat.File, caption string, streaming bool) (chat.MessageRef, error) {
	return c.sendFile(ctx, chatID, file, func(f tgbotapi.RequestFileData) tgbotapi.Chattable {
		video := tgbotapi.NewVideo(chatID, f)
		video.Caption = caption
		video.SupportsStreaming = streaming
		return video
	})
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, file chat.File, caption string) (chat.MessageRef, error) {
	return c.sendFile(ctx, chatID, file, func(f tgbotapi.RequestFileData) tgbotapi.Chattable {
		doc := tgbotapi.NewDocument(chatID, f)
		doc.Caption = caption
		return doc
	})
}

func (c *Client) sendFile(ctx context.Context, chatID int64, file chat.File, build func(tgbotapi.RequestFileData) tgbotapi.Chattable) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}
	f, err := os.Open(file.Path)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("error opening %s: %w", file.Path, err)
	}
	defer f.Close()
	sent, err := c.api.Send(build(tgbotapi.FileReader{Name: file.Name, Reader: f}))
	if err != nil {
		return chat.MessageRef{}, mapError(err)
	}
	return chat.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (c *Client) CopyMessage(ctx context.Context, toChatID int64, from chat.MessageRef) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}
	resp, err := c.api.Request(tgbotapi.NewCopyMessage(toChatID, from.ChatID, from.MessageID))
	if err != nil {
		return chat.MessageRef{}, mapError(err)
	}
	var id tgbotapi.MessageID
	if err := json.Unmarshal(resp.Result, &id); err != nil {
		return chat.MessageRef{}, fmt.Errorf("error decoding copied message id: %w", err)
	}
	return chat.MessageRef{ChatID: toChatID, MessageID: id.MessageID}, nil
}

func apiError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}
	return tgbotapi.Error{}, false
}

// mapError turns flood control replies into chat.FloodError.
func mapError(err error) error {
	apiErr, ok := apiError(err)
	if !ok {
		return err
	}
	if apiErr.RetryAfter > 0 || apiErr.Code == http.StatusTooManyRequests {
		return &chat.FloodError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second, Err: err}
	}
	return err
}

func notModified(err error) bool {
	apiErr, ok := apiError(err)
	return ok && strings.Contains(apiErr.Message, "message is not modified")
}
