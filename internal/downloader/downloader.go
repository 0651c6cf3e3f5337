package downloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/utils"
)

type Options struct {
	ChunkSize         int
	MaxFileSize       int64
	DualLaneThreshold int64
	RefererCandidates []string
	// IdleTimeout fails a transfer whose body stops delivering data for this
	// long. Defaults to HTTPClientConfig.Timeout.
	IdleTimeout      time.Duration
	HTTPClientConfig utils.HTTPClientConfig
}

type Result struct {
	// Paths holds one file, or the ordered split parts.
	Paths     []string
	Size      int64
	DualLane  bool
	Referer   string
	TimeTaken time.Duration
}

type Downloader struct {
	opts       Options
	client     *utils.LeechHTTPClient
	laneClient *utils.LeechHTTPClient
}

func New(opts Options) *Downloader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = utils.DefaultChunkSize
	}
	if opts.RefererCandidates == nil {
		opts.RefererCandidates = utils.RefererCandidates
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = opts.HTTPClientConfig.Timeout
	}
	// transfers run as long as data keeps arriving; Timeout only bounds the
	// wait for response headers
	opts.HTTPClientConfig.Streaming = true
	laneCfg := opts.HTTPClientConfig
	laneCfg.HighThreadMode = true
	return &Downloader{
		opts:       opts,
		client:     utils.NewLeechHTTPClient(opts.HTTPClientConfig),
		laneClient: utils.NewLeechHTTPClient(laneCfg),
	}
}

// Fetch downloads job.URL to job.OutputPath, walking the referer chain until
// the origin accepts one. Cancellation and the size ceiling stop the walk
// immediately.
func (d *Downloader) Fetch(ctx context.Context, job *utils.DownloadJob) (Result, error) {
	if job.TotalSize > d.opts.MaxFileSize && d.opts.MaxFileSize > 0 {
		return Result{}, &DownloadError{URL: job.URL, Err: ErrTooLarge}
	}
	if job.StartTime.IsZero() {
		job.StartTime = time.Now()
	}

	progressCh := make(chan progressEvent, 100)
	progressDone := make(chan struct{})
	go aggregate(job, job.TotalSize, progressCh, progressDone)
	finish := func() {
		close(progressCh)
		<-progressDone
	}

	var lastErr error
	for i, referer := range d.referers(job.Referer) {
		if err := checkCancel(ctx, job); err != nil {
			finish()
			return Result{}, err
		}
		res, err := d.attempt(ctx, job, referer, progressCh)
		if err == nil {
			finish()
			res.Referer = referer
			res.TimeTaken = time.Since(job.StartTime)
			log.Info().Str("op", "downloader/fetch").Msgf("downloaded %s in %s (dual=%t)", utils.FormatBytes(uint64(res.Size)), res.TimeTaken.Round(time.Millisecond), res.DualLane)
			return res, nil
		}
		if !advance(err) {
			finish()
			if errors.Is(err, ErrCancelled) {
				return Result{}, err
			}
			return Result{}, &DownloadError{URL: job.URL, Err: err}
		}
		lastErr = err
		log.Warn().Str("op", "downloader/fetch").Err(err).Msgf("attempt %d with referer %q failed", i+1, referer)
	}
	finish()
	if lastErr == nil {
		lastErr = errors.New("no referer candidates")
	}
	return Result{}, &DownloadError{URL: job.URL, Err: lastErr}
}

// advance reports whether the next referer is worth trying after err.
func advance(err error) bool {
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var lane *laneError
	if errors.As(err, &lane) {
		return false
	}
	var pathErr *fs.PathError
	return !errors.As(err, &pathErr)
}

func (d *Downloader) referers(first string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range append([]string{first}, d.opts.RefererCandidates...) {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

func (d *Downloader) attempt(ctx context.Context, job *utils.DownloadJob, referer string, progressCh chan<- progressEvent) (Result, error) {
	req, err := d.newRequest(ctx, job, referer)
	if err != nil {
		return Result{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if cerr := checkCancel(ctx, job); cerr != nil {
			return Result{}, cerr
		}
		return Result{}, fmt.Errorf("error requesting file: %w", err)
	}
	resp.Body = d.watchIdle(resp.Body)
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return Result{}, errForbidden
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	total := job.TotalSize
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}
	if d.opts.MaxFileSize > 0 && total > d.opts.MaxFileSize {
		return Result{}, ErrTooLarge
	}
	job.TotalSize = total

	if job.SplitSize > 0 && (total <= 0 || total > job.SplitSize) {
		parts, written, err := d.streamSplit(ctx, job, resp, progressCh)
		if err != nil {
			return Result{}, err
		}
		return Result{Paths: parts, Size: written}, nil
	}
	if total >= 2 && total >= d.opts.DualLaneThreshold && resp.Header.Get("Accept-Ranges") == "bytes" {
		resp.Body.Close()
		if err := d.fetchLanes(ctx, job, referer, total, progressCh); err != nil {
			return Result{}, err
		}
		return Result{Paths: []string{job.OutputPath}, Size: total, DualLane: true}, nil
	}
	written, err := d.streamSingle(ctx, job, resp, progressCh)
	if err != nil {
		return Result{}, err
	}
	return Result{Paths: []string{job.OutputPath}, Size: written}, nil
}

func (d *Downloader) newRequest(ctx context.Context, job *utils.DownloadJob, referer string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	for k, v := range job.Headers {
		req.Header.Set(k, v)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	return req, nil
}

func checkCancel(ctx context.Context, job *utils.DownloadJob) error {
	if job.Cancelled() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}

type progressEvent struct {
	n     int64
	total int64
}

// aggregate folds byte deltas from every lane into job.Downloaded and fans
// the total out to the progress callbacks. A negative delta rewinds a failed
// attempt; the reported figure never goes backwards.
func aggregate(job *utils.DownloadJob, total int64, progressCh <-chan progressEvent, done chan<- struct{}) {
	defer close(done)
	var current, reported, lastSent int64
	report := func() {
		if job.ProgressFunc != nil {
			job.ProgressFunc(reported, total)
		}
		if job.StatusFunc != nil {
			job.StatusFunc(reported, total)
		}
		lastSent = reported
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-progressCh:
			if !ok {
				job.Downloaded = reported
				if reported != lastSent {
					report()
				}
				return
			}
			if ev.total > 0 {
				total = ev.total
			}
			current += ev.n
			if current > reported {
				reported = current
			}
			if total > 0 && reported >= total && reported != lastSent {
				report()
			}
		case <-ticker.C:
			if reported != lastSent {
				report()
			}
		}
	}
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("op", "downloader/cleanup").Err(err).Msgf("could not remove %s", p)
		}
	}
}
