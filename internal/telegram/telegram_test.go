package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/teraleech/internal/chat"
	"github.com/tanq16/teraleech/internal/queue"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	body    []byte // bytes read from the last uploaded file
	sendErr error
	reqErr  error
	nextID  int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	switch v := c.(type) {
	case tgbotapi.VideoConfig:
		f.body, _ = io.ReadAll(v.File.(tgbotapi.FileReader).Reader)
	case tgbotapi.DocumentConfig:
		f.body, _ = io.ReadAll(v.File.(tgbotapi.FileReader).Reader)
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if f.reqErr != nil {
		return nil, f.reqErr
	}
	return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage(`{"message_id":77}`)}, nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, v.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, v.Text)
		}
	}
	return out
}

func TestSendVideoUsesDisplayName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "01TOKEN-movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("frames"), 0644))
	api := &fakeAPI{}
	c := NewClient(api)

	ref, err := c.SendVideo(context.Background(), 10, chat.File{Path: path, Name: "movie.mp4"}, "Part 1/2", true)
	require.NoError(t, err)
	assert.Equal(t, chat.MessageRef{ChatID: 10, MessageID: 1}, ref)

	video, ok := api.sent[0].(tgbotapi.VideoConfig)
	require.True(t, ok)
	assert.True(t, video.SupportsStreaming)
	assert.Equal(t, "Part 1/2", video.Caption)
	assert.Equal(t, "movie.mp4", video.File.(tgbotapi.FileReader).Name)
	assert.Equal(t, "frames", string(api.body))
}

func TestSendDocumentMissingFile(t *testing.T) {
	api := &fakeAPI{}
	_, err := NewClient(api).SendDocument(context.Background(), 10, chat.File{Path: "/nope", Name: "a.zip"}, "")
	require.Error(t, err)
	assert.Empty(t, api.sent)
}

func TestMapErrorFloodControl(t *testing.T) {
	flood := &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}
	api := &fakeAPI{sendErr: flood}
	_, err := NewClient(api).SendText(context.Background(), 1, "hi")
	var fe *chat.FloodError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 7*time.Second, fe.RetryAfter)
	assert.True(t, chat.IsTransient(err))

	plain := errors.New("bad request")
	assert.Equal(t, plain, mapError(plain))
	other := &tgbotapi.Error{Code: 400, Message: "chat not found"}
	assert.False(t, chat.IsTransient(mapError(other)))
}

func TestEditIgnoresNotModified(t *testing.T) {
	api := &fakeAPI{reqErr: &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}}
	require.NoError(t, NewClient(api).EditMessageText(context.Background(), 1, 2, "same"))
	api.reqErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}
	require.Error(t, NewClient(api).EditMessageText(context.Background(), 1, 2, "same"))
}

func TestCopyMessage(t *testing.T) {
	api := &fakeAPI{}
	ref, err := NewClient(api).CopyMessage(context.Background(), -100, chat.MessageRef{ChatID: 5, MessageID: 9})
	require.NoError(t, err)
	assert.Equal(t, chat.MessageRef{ChatID: -100, MessageID: 77}, ref)
	cp := api.sent[0].(tgbotapi.CopyMessageConfig)
	assert.Equal(t, int64(5), cp.FromChatID)
	assert.Equal(t, 9, cp.MessageID)
}

func TestExtractLinks(t *testing.T) {
	text := "grab https://www.terabox.com/s/1abc, and https://1024tera.com/s/2def.\n" +
		"also https://example.com/s/3 and again https://www.terabox.com/s/1abc"
	assert.Equal(t, []string{"https://www.terabox.com/s/1abc", "https://1024tera.com/s/2def"}, ExtractLinks(text))
	assert.Empty(t, ExtractLinks("no links here"))
	assert.False(t, IsShareLink("https://notterabox.com/s/1"))
	assert.True(t, IsShareLink("https://teraboxapp.com/s/1"))
}

type fakeEnqueuer struct {
	payloads []queue.LeechPayload
	err      error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, p queue.LeechPayload) error {
	f.payloads = append(f.payloads, p)
	return f.err
}

type fakeActive map[int64]string

func (a fakeActive) Get(ctx context.Context, userID int64) (string, error) {
	return a[userID], nil
}

type fakeCancels struct{ jobs []string }

func (f *fakeCancels) Request(ctx context.Context, jobID string) error {
	f.jobs = append(f.jobs, jobID)
	return nil
}

func message(text string) *tgbotapi.Message {
	m := &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: 55},
		From: &tgbotapi.User{ID: 9},
	}
	if len(text) > 0 && text[0] == '/' {
		m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return m
}

func TestHandleMessageQueuesLinks(t *testing.T) {
	api := &fakeAPI{}
	enq := &fakeEnqueuer{}
	b := NewBot(nil, NewClient(api), enq, fakeActive{}, &fakeCancels{})

	b.HandleMessage(context.Background(), message("https://terabox.com/s/1 https://terabox.com/s/2"))
	require.Len(t, enq.payloads, 2)
	p := enq.payloads[0]
	assert.Equal(t, int64(55), p.ChatID)
	assert.Equal(t, int64(9), p.UserID)
	assert.Equal(t, 1, p.StatusMessageID)
	assert.Equal(t, "https://terabox.com/s/1", p.URL)
	assert.NotEmpty(t, p.JobID)
	assert.NotEqual(t, p.JobID, enq.payloads[1].JobID)
}

func TestHandleMessageEnqueueFailure(t *testing.T) {
	api := &fakeAPI{}
	b := NewBot(nil, NewClient(api), &fakeEnqueuer{err: errors.New("redis down")}, fakeActive{}, &fakeCancels{})
	b.HandleMessage(context.Background(), message("https://terabox.com/s/1"))
	texts := api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Could not queue")
}

func TestHandleCancel(t *testing.T) {
	api := &fakeAPI{}
	cancels := &fakeCancels{}
	b := NewBot(nil, NewClient(api), &fakeEnqueuer{}, fakeActive{9: "job-1"}, cancels)

	b.HandleMessage(context.Background(), message("/cancel"))
	assert.Equal(t, []string{"job-1"}, cancels.jobs)

	b = NewBot(nil, NewClient(api), &fakeEnqueuer{}, fakeActive{}, cancels)
	b.HandleMessage(context.Background(), message("/cancel"))
	assert.Len(t, cancels.jobs, 1)
	texts := api.texts()
	assert.Equal(t, "Nothing to cancel.", texts[len(texts)-1])
}
