package progress

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordSink) Publish(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func (r *recordSink) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMeterThrottlesBurst(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	sink := &recordSink{}
	const total = 1000 * 1024
	m := NewMeter(sink, "Downloading", total, WithClock(clock.now), WithInterval(2500*time.Millisecond))

	// 1000 updates spread over one second
	for i := 1; i <= 1000; i++ {
		clock.advance(time.Millisecond)
		m.Update(int64(i * 1024))
	}
	m.Close()

	texts := sink.all()
	require.Len(t, texts, 2)
	assert.NotContains(t, texts[0], "100.0%")
	assert.Contains(t, texts[1], "100.0%")
}

func TestMeterTerminalOnlyOnce(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	sink := &recordSink{}
	m := NewMeter(sink, "", 100, WithClock(clock.now))
	m.Update(100)
	m.Update(100)
	m.Finish(100)
	m.Close()
	assert.Len(t, sink.all(), 1)
}

func TestMeterEmitsAfterInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	sink := &recordSink{}
	m := NewMeter(sink, "", 1000, WithClock(clock.now), WithInterval(time.Second))
	m.Update(100)
	clock.advance(500 * time.Millisecond)
	m.Update(200)
	clock.advance(600 * time.Millisecond)
	m.Update(300)
	m.Close()
	texts := sink.all()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "10.0%")
	assert.Contains(t, texts[1], "30.0%")
}

func TestMeterUnknownTotalFinish(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	sink := &recordSink{}
	m := NewMeter(sink, "", 0, WithClock(clock.now))
	m.Update(2048)
	clock.advance(time.Second)
	m.Finish(4096)
	m.Close()
	texts := sink.all()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "2.00 KB downloaded")
	assert.Contains(t, texts[1], "100.0%")
}

func TestMeterSwallowsSinkErrors(t *testing.T) {
	sink := &recordSink{err: errors.New("message is not modified")}
	m := NewMeter(sink, "", 10)
	m.Update(5)
	m.Status("uploading")
	m.Update(10)
	m.Close()
	assert.Len(t, sink.all(), 3)
}

func TestMeterCompactETA(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	sink := &recordSink{}
	m := NewMeter(sink, "movie.mp4", 4*1024*1024, WithClock(clock.now), WithETA(), WithCompact())
	clock.advance(2 * time.Second)
	m.Update(1024 * 1024)
	m.Close()
	texts := sink.all()
	require.Len(t, texts, 1)
	line := texts[0]
	assert.False(t, strings.Contains(line, "\n"))
	assert.Contains(t, line, "movie.mp4")
	assert.Contains(t, line, "1.00 MB / 4.00 MB")
	assert.Contains(t, line, "Speed: 512.00 KB/s")
	assert.Contains(t, line, "ETA: 6s")
}

func TestMeterCloseIdempotent(t *testing.T) {
	m := NewMeter(&recordSink{}, "", 10)
	m.Close()
	m.Close()
	m.Update(10)
	m.Status("late")
}
