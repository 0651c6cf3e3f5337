// Package chattest provides an in-memory chat.Transport for tests.
package chattest

import (
	"context"
	"os"
	"sync"

	"github.com/tanq16/teraleech/internal/chat"
)

type Sent struct {
	Kind      string // text, video, document, copy
	ChatID    int64
	MessageID int
	Name      string
	Caption   string
	Text      string
	Size      int64
	Streaming bool
}

type Edit struct {
	ChatID    int64
	MessageID int
	Text      string
}

// Recorder records every call. FailOn lets a test fail the n-th file send
// (1-based, counting videos and documents together).
type Recorder struct {
	mu       sync.Mutex
	nextID   int
	sends    []Sent
	edits    []Edit
	fileSeen int

	FailOn   int
	FailWith error
	EditErr  error
	CopyErr  error
}

func (r *Recorder) id() int {
	r.nextID++
	return r.nextID
}

func (r *Recorder) SendText(ctx context.Context, chatID int64, text string) (chat.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.id()
	r.sends = append(r.sends, Sent{Kind: "text", ChatID: chatID, MessageID: id, Text: text})
	return chat.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (r *Recorder) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, Edit{ChatID: chatID, MessageID: messageID, Text: text})
	return r.EditErr
}

func (r *Recorder) SendVideo(ctx context.Context, chatID int64, file chat.File, caption string, streaming bool) (chat.MessageRef, error) {
	return r.sendFile(chatID, "video", file, caption, streaming)
}

func (r *Recorder) SendDocument(ctx context.Context, chatID int64, file chat.File, caption string) (chat.MessageRef, error) {
	return r.sendFile(chatID, "document", file, caption, false)
}

func (r *Recorder) sendFile(chatID int64, kind string, file chat.File, caption string, streaming bool) (chat.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fileSeen++
	if r.FailOn > 0 && r.fileSeen == r.FailOn {
		return chat.MessageRef{}, r.FailWith
	}
	var size int64
	if info, err := os.Stat(file.Path); err == nil {
		size = info.Size()
	}
	id := r.id()
	r.sends = append(r.sends, Sent{Kind: kind, ChatID: chatID, MessageID: id, Name: file.Name, Caption: caption, Size: size, Streaming: streaming})
	return chat.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (r *Recorder) CopyMessage(ctx context.Context, toChatID int64, from chat.MessageRef) (chat.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CopyErr != nil {
		return chat.MessageRef{}, r.CopyErr
	}
	id := r.id()
	r.sends = append(r.sends, Sent{Kind: "copy", ChatID: toChatID, MessageID: id})
	return chat.MessageRef{ChatID: toChatID, MessageID: id}, nil
}

func (r *Recorder) Sends() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sends...)
}

// Files returns only video and document sends.
func (r *Recorder) Files() []Sent {
	var out []Sent
	for _, s := range r.Sends() {
		if s.Kind == "video" || s.Kind == "document" {
			out = append(out, s)
		}
	}
	return out
}

func (r *Recorder) Edits() []Edit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Edit(nil), r.edits...)
}

func (r *Recorder) LastEdit() string {
	edits := r.Edits()
	if len(edits) == 0 {
		return ""
	}
	return edits[len(edits)-1].Text
}
