// Package progress turns a stream of byte counts into throttled, human
// readable status updates.
package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/utils"
	"golang.org/x/time/rate"
)

const queueSize = 8

type Meter struct {
	sink     Sink
	label    string
	interval time.Duration
	now      func() time.Time
	limiter  *rate.Limiter
	eta      bool
	compact  bool
	barWidth int
	timeout  time.Duration

	mu         sync.Mutex
	total      int64
	start      time.Time
	lastUpdate time.Time
	finished   bool
	closed     bool
	dropped    int

	queue chan string
	done  chan struct{}
}

type Option func(*Meter)

func WithInterval(d time.Duration) Option {
	return func(m *Meter) { m.interval = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Meter) { m.now = now }
}

// WithETA adds a remaining-time estimate to each rendered line.
func WithETA() Option {
	return func(m *Meter) { m.eta = true }
}

// WithCompact renders a single line instead of the multi-line chat layout.
func WithCompact() Option {
	return func(m *Meter) { m.compact = true }
}

func WithBarWidth(n int) Option {
	return func(m *Meter) { m.barWidth = n }
}

// NewMeter starts the sender goroutine; Close must be called to stop it.
func NewMeter(sink Sink, label string, total int64, opts ...Option) *Meter {
	m := &Meter{
		sink:     sink,
		label:    label,
		total:    total,
		interval: 2500 * time.Millisecond,
		now:      time.Now,
		barWidth: 16,
		timeout:  15 * time.Second,
		queue:    make(chan string, queueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.start = m.now()
	m.limiter = rate.NewLimiter(rate.Every(m.interval), 1)
	go m.send()
	return m
}

func (m *Meter) SetTotal(total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if total > 0 {
		m.total = total
	}
}

// Report is the downloader callback shape.
func (m *Meter) Report(downloaded, total int64) {
	m.SetTotal(total)
	m.Update(downloaded)
}

// Update emits at most one edit per interval. The first update that reaches
// the known total is always emitted, exactly once.
func (m *Meter) Update(downloaded int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.finished {
		return
	}
	now := m.now()
	if m.total > 0 && downloaded >= m.total {
		m.finished = true
		m.lastUpdate = now
		m.queue <- m.render(m.total, now)
		return
	}
	if !m.limiter.AllowN(now, 1) {
		return
	}
	m.lastUpdate = now
	select {
	case m.queue <- m.render(downloaded, now):
	default:
		m.dropped++
	}
}

// Finish flushes the terminal update if no update reached it, which happens
// when the total was unknown.
func (m *Meter) Finish(downloaded int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.finished {
		return
	}
	m.finished = true
	if m.total <= 0 {
		m.total = downloaded
	}
	m.queue <- m.render(downloaded, m.now())
}

// Status publishes free-form text outside the throttle.
func (m *Meter) Status(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue <- text
}

// Close drains queued edits and stops the sender.
func (m *Meter) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()
	<-m.done
	if m.dropped > 0 {
		log.Debug().Str("op", "progress/meter").Msgf("%d progress edits dropped while sender was busy", m.dropped)
	}
}

func (m *Meter) send() {
	defer close(m.done)
	for text := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		if err := m.sink.Publish(ctx, text); err != nil {
			log.Debug().Str("op", "progress/meter").Err(err).Msg("progress edit failed")
		}
		cancel()
	}
}

func (m *Meter) render(downloaded int64, now time.Time) string {
	var parts []string
	if m.label != "" {
		parts = append(parts, m.label)
	}
	if m.total > 0 {
		pct := float64(downloaded) / float64(m.total) * 100
		parts = append(parts,
			fmt.Sprintf("%s %.1f%%", utils.ProgressBar(pct, m.barWidth), pct),
			fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(downloaded)), utils.FormatBytes(uint64(m.total))),
		)
	} else {
		parts = append(parts, utils.FormatBytes(uint64(downloaded))+" downloaded")
	}
	elapsed := now.Sub(m.start).Seconds()
	parts = append(parts, "Speed: "+utils.FormatSpeed(downloaded, elapsed))
	if m.eta && m.total > 0 && downloaded < m.total && downloaded > 0 && elapsed > 0 {
		bps := float64(downloaded) / elapsed
		remaining := time.Duration(float64(m.total-downloaded) / bps * float64(time.Second))
		parts = append(parts, "ETA: "+utils.FormatETA(remaining))
	}
	if m.compact {
		return strings.Join(parts, " | ")
	}
	return strings.Join(parts, "\n")
}
