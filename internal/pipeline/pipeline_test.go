package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/teraleech/internal/chat/chattest"
	"github.com/tanq16/teraleech/internal/downloader"
	"github.com/tanq16/teraleech/internal/resolver"
	"github.com/tanq16/teraleech/internal/segmenter"
	"github.com/tanq16/teraleech/internal/uploader"
	"github.com/tanq16/teraleech/internal/utils"
)

const mb = 1024 * 1024

type fakeResolver struct {
	files []utils.FileDescriptor
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, shareURL string) ([]utils.FileDescriptor, error) {
	if f.err != nil {
		return nil, &resolver.ResolutionError{URL: shareURL, Err: f.err}
	}
	return f.files, nil
}

// sparseFetcher materialises files without any network traffic.
type sparseFetcher struct {
	size  int64
	extra []string
	err   error
}

func (f *sparseFetcher) Fetch(ctx context.Context, job *utils.DownloadJob) (downloader.Result, error) {
	for _, p := range append([]string{job.OutputPath}, f.extraPaths(job.OutputPath)...) {
		if err := sparse(p, f.size); err != nil {
			return downloader.Result{}, err
		}
	}
	if job.ProgressFunc != nil {
		job.ProgressFunc(f.size, f.size)
	}
	if f.err != nil {
		return downloader.Result{}, f.err
	}
	return downloader.Result{Paths: []string{job.OutputPath}, Size: f.size}, nil
}

func (f *sparseFetcher) extraPaths(dest string) []string {
	var out []string
	for _, suffix := range f.extra {
		out = append(out, dest+suffix)
	}
	return out
}

func sparse(path string, size int64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return file.Truncate(size)
}

// splitRunner stands in for the media tools: duration is fixed and the
// input is divided evenly by segment time.
type splitRunner struct {
	duration  float64
	failAfter int
}

func (r *splitRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return []byte(strconv.FormatFloat(r.duration, 'f', 3, 64)), nil
}

func (r *splitRunner) Run(ctx context.Context, name string, args ...string) error {
	var input string
	var secs float64
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-i":
			input = args[i+1]
		case "-segment_time":
			secs, _ = strconv.ParseFloat(args[i+1], 64)
		}
	}
	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	n := int(math.Ceil(r.duration / secs))
	per := info.Size() / int64(n)
	for i := 0; i < n; i++ {
		if r.failAfter > 0 && i == r.failAfter {
			return errors.New("ffmpeg error: exit status 1")
		}
		size := per
		if i == n-1 {
			size = info.Size() - per*int64(n-1)
		}
		if err := sparse(fmt.Sprintf(args[len(args)-1], i), size); err != nil {
			return err
		}
	}
	return nil
}

type memLedger struct {
	mu   sync.Mutex
	done map[string]bool
}

func (l *memLedger) Delivered(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done[key], nil
}

func (l *memLedger) MarkDelivered(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done[key] = true
	return nil
}

type recordArchiver struct {
	names []string
	err   error
}

func (a *recordArchiver) Archive(ctx context.Context, jobID, path, name string) error {
	a.names = append(a.names, jobID+"/"+name)
	return a.err
}

type harness struct {
	dir      string
	recorder *chattest.Recorder
	pipeline *Pipeline
	runner   *splitRunner
	resolver *fakeResolver
	deps     Deps
	opts     Options
}

func newHarness(t *testing.T, fetcher Fetcher) *harness {
	h := &harness{
		dir:      t.TempDir(),
		recorder: &chattest.Recorder{},
		runner:   &splitRunner{duration: 1536},
		resolver: &fakeResolver{},
	}
	h.opts = Options{
		DownloadDir:      h.dir,
		UploadCeiling:    50 * mb,
		SplitPartSize:    49 * mb,
		SegmentThreshold: 50 * mb,
		SegmentTarget:    45 * mb,
		ProgressInterval: 2500 * time.Millisecond,
		LegacyInterval:   5 * time.Second,
	}
	h.deps = Deps{
		Resolver: h.resolver,
		Fetcher:  fetcher,
		Segmenter: segmenter.New(segmenter.Options{
			TargetPartSize:     45 * mb,
			SafetyMargin:       2 * mb,
			Ceiling:            50 * mb,
			MinSegmentTime:     30 * time.Second,
			MaxSegmentTime:     time.Hour,
			DefaultSegmentTime: 5 * time.Minute,
		}, h.runner),
		Sender:    uploader.New(h.recorder, uploader.Options{Ceiling: 50 * mb}),
		Transport: h.recorder,
	}
	h.rebuild()
	return h
}

func (h *harness) rebuild() {
	h.pipeline = New(h.opts, h.deps)
}

func (h *harness) run(t *testing.T) (Summary, error) {
	t.Helper()
	return h.pipeline.Handle(context.Background(), Request{JobID: "job-1", ChatID: 42, ShareURL: "https://www.terabox.com/s/1abc"})
}

func (h *harness) assertEmptyDir(t *testing.T) {
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Empty(t, names)
}

func countEdits(rec *chattest.Recorder, substr string) int {
	n := 0
	for _, e := range rec.Edits() {
		if strings.Contains(e.Text, substr) {
			n++
		}
	}
	return n
}

func TestHandleSmallFileDirectUpload(t *testing.T) {
	data := make([]byte, 30*mb)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(data))
	}))
	defer origin.Close()

	dl := downloader.New(downloader.Options{MaxFileSize: 4096 * mb, DualLaneThreshold: 50 * mb, RefererCandidates: []string{}})
	h := newHarness(t, dl)
	h.resolver.files = []utils.FileDescriptor{{Name: "clip.mp4", DirectURL: origin.URL + "/clip", Size: 30 * mb}}

	summary, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)

	files := h.recorder.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "video", files[0].Kind)
	assert.Equal(t, "clip.mp4", files[0].Name)
	assert.Equal(t, int64(30*mb), files[0].Size)
	assert.Equal(t, 1, countEdits(h.recorder, "File uploaded"))
	assert.Equal(t, "✅ File uploaded: clip.mp4", h.recorder.LastEdit())
	assert.Equal(t, 0, countEdits(h.recorder, "Splitting"))
	h.assertEmptyDir(t)
}

func TestHandleLargeVideoSegmented(t *testing.T) {
	h := newHarness(t, &sparseFetcher{size: 150 * mb})
	h.resolver.files = []utils.FileDescriptor{{Name: "movie.mp4", DirectURL: "https://d.terabox.com/movie", Size: 150 * mb}}

	_, err := h.run(t)
	require.NoError(t, err)

	files := h.recorder.Files()
	require.GreaterOrEqual(t, len(files), 3)
	var total int64
	for i, f := range files {
		assert.LessOrEqual(t, f.Size, int64(50*mb))
		assert.True(t, strings.HasSuffix(f.Caption, fmt.Sprintf("Part %d/%d", i+1, len(files))), f.Caption)
		total += f.Size
	}
	assert.Equal(t, int64(150*mb), total)
	assert.Equal(t, 1, countEdits(h.recorder, "Splitting"))
	assert.Equal(t, 1, countEdits(h.recorder, "File uploaded"))
	h.assertEmptyDir(t)
}

func TestHandleLargeDocumentSplitDownload(t *testing.T) {
	data := make([]byte, 2500)
	for i := range data {
		data[i] = byte(i)
	}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "a.zip", time.Time{}, bytes.NewReader(data))
	}))
	defer origin.Close()

	dl := downloader.New(downloader.Options{ChunkSize: 256, MaxFileSize: 1 << 30, DualLaneThreshold: 1 << 30, RefererCandidates: []string{}})
	h := newHarness(t, dl)
	h.opts.UploadCeiling = 1000
	h.opts.SplitPartSize = 900
	h.deps.Sender = uploader.New(h.recorder, uploader.Options{Ceiling: 1000})
	h.rebuild()
	h.resolver.files = []utils.FileDescriptor{{Name: "a.zip", DirectURL: origin.URL, Size: 2500}}

	_, err := h.run(t)
	require.NoError(t, err)
	files := h.recorder.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "document", files[0].Kind)
	assert.Equal(t, "a.part2.zip", files[1].Name)
	assert.Equal(t, []int64{900, 900, 700}, []int64{files[0].Size, files[1].Size, files[2].Size})
	h.assertEmptyDir(t)
}

func TestHandleFolderSkipsDelivered(t *testing.T) {
	h := newHarness(t, &sparseFetcher{size: 1024})
	ledger := &memLedger{done: map[string]bool{"job-1/0": true}}
	archiver := &recordArchiver{err: errors.New("bucket unavailable")}
	h.deps.Ledger = ledger
	h.deps.Archiver = archiver
	h.rebuild()
	h.resolver.files = []utils.FileDescriptor{
		{Name: "a.pdf", DirectURL: "https://d.terabox.com/a", Size: 1024},
		{Name: "b.pdf", DirectURL: "https://d.terabox.com/b", Size: 1024},
	}

	summary, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, h.recorder.Files(), 1)
	assert.Equal(t, "b.pdf", h.recorder.Files()[0].Name)
	assert.True(t, ledger.done["job-1/1"])
	// archive failures are logged, not fatal
	assert.Equal(t, []string{"job-1/b.pdf"}, archiver.names)
	assert.Equal(t, "✅ Uploaded 1 files (1 already delivered)", h.recorder.LastEdit())
}

func TestHandleCleanupOnEveryPhaseFailure(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(h *harness)
		message string
	}{
		{
			name: "resolution",
			setup: func(h *harness) {
				h.resolver.err = errors.New("both backends failed")
			},
			message: "Could not fetch file info",
		},
		{
			name: "download",
			setup: func(h *harness) {
				h.deps.Fetcher = &sparseFetcher{size: 4096, extra: []string{".lane0", ".lane1"}, err: &downloader.DownloadError{Err: errors.New("origin refused request (403)")}}
				h.rebuild()
			},
			message: "Download failed",
		},
		{
			name: "cancel",
			setup: func(h *harness) {
				h.deps.Fetcher = &sparseFetcher{size: 4096, err: downloader.ErrCancelled}
				h.rebuild()
			},
			message: "cancelled",
		},
		{
			name: "segmentation",
			setup: func(h *harness) {
				h.runner.failAfter = 1
			},
			message: "Could not split",
		},
		{
			name: "upload",
			setup: func(h *harness) {
				h.recorder.FailOn = 2
				h.recorder.FailWith = errors.New("Bad Request: wrong file identifier")
			},
			message: "Upload failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &sparseFetcher{size: 150 * mb})
			h.resolver.files = []utils.FileDescriptor{{Name: "movie.mkv", DirectURL: "https://d.terabox.com/m", Size: 150 * mb}}
			tc.setup(h)

			_, err := h.run(t)
			require.Error(t, err)
			assert.Contains(t, h.recorder.LastEdit(), tc.message)
			h.assertEmptyDir(t)
		})
	}
}

func TestHandleDownloadDirFailureReported(t *testing.T) {
	h := newHarness(t, &sparseFetcher{size: mb})
	blocker := filepath.Join(h.dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	h.opts.DownloadDir = filepath.Join(blocker, "downloads")
	h.rebuild()
	h.resolver.files = []utils.FileDescriptor{{Name: "a.bin", DirectURL: "https://d.terabox.com/a", Size: mb}}

	_, err := h.run(t)
	require.Error(t, err)
	assert.Equal(t, "❌ Something went wrong while processing the link.", h.recorder.LastEdit())
	assert.Empty(t, h.recorder.Files())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Contains(t, UserMessage(&downloader.DownloadError{Err: downloader.ErrTooLarge}), "too large")
	assert.Contains(t, UserMessage(&uploader.UploadError{Transient: true, Err: context.DeadlineExceeded}), "timed out")
	assert.Contains(t, UserMessage(errors.New("boom")), "Something went wrong")
}
