// Package cancel provides the cooperative cancellation flag checked by the
// downloader at chunk boundaries, plus a watcher that raises it from an
// external store.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type Token struct {
	set atomic.Bool
}

func NewToken() *Token {
	return &Token{}
}

func (t *Token) Cancel() {
	t.set.Store(true)
}

func (t *Token) Cancelled() bool {
	return t != nil && t.set.Load()
}

// Registry tracks the tokens of jobs running in this process.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

func (r *Registry) Register(jobID string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok, ok := r.tokens[jobID]; ok {
		return tok
	}
	tok := NewToken()
	r.tokens[jobID] = tok
	return tok
}

func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[jobID]
	if ok {
		tok.Cancel()
	}
	return ok
}

func (r *Registry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, jobID)
}

type Store interface {
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// Watch polls store until the job is flagged or ctx ends, then raises tok.
func Watch(ctx context.Context, store Store, jobID string, tok *Token, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, err := store.IsCancelled(ctx, jobID)
			if err != nil {
				log.Debug().Str("op", "cancel/watch").Err(err).Msgf("could not poll cancel flag for %s", jobID)
				continue
			}
			if cancelled {
				log.Info().Str("op", "cancel/watch").Msgf("job %s cancelled", jobID)
				tok.Cancel()
				return
			}
		}
	}
}
