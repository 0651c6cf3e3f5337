package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/utils"
)

// readChunks copies body in fixed-size chunks, checking for cancellation
// before every read and reporting every chunk written.
func (d *Downloader) readChunks(ctx context.Context, job *utils.DownloadJob, body io.Reader, total int64, progressCh chan<- progressEvent, write func([]byte) error) (int64, error) {
	buffer := make([]byte, d.opts.ChunkSize)
	var written int64
	for {
		if err := checkCancel(ctx, job); err != nil {
			return written, err
		}
		n, err := io.ReadFull(body, buffer)
		if n > 0 {
			if d.opts.MaxFileSize > 0 && written+int64(n) > d.opts.MaxFileSize {
				return written, ErrTooLarge
			}
			if writeErr := write(buffer[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)
			progressCh <- progressEvent{n: int64(n), total: total}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return written, nil
		}
		if err != nil {
			if cerr := checkCancel(ctx, job); cerr != nil {
				return written, cerr
			}
			return written, fmt.Errorf("error reading body: %w", err)
		}
	}
}

func (d *Downloader) streamSingle(ctx context.Context, job *utils.DownloadJob, resp *http.Response, progressCh chan<- progressEvent) (int64, error) {
	file, err := os.OpenFile(job.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	written, err := d.readChunks(ctx, job, resp.Body, job.TotalSize, progressCh, func(b []byte) error {
		_, werr := file.Write(b)
		return werr
	})
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil && job.TotalSize > 0 && written != job.TotalSize {
		err = fmt.Errorf("size mismatch: expected %d bytes, got %d", job.TotalSize, written)
	}
	if err != nil {
		progressCh <- progressEvent{n: -written}
		removeFiles(job.OutputPath)
		return 0, err
	}
	return written, nil
}

// streamSplit writes the body across part files of at most job.SplitSize
// bytes each, named <output>.part1, <output>.part2 and so on. A body that fits
// in one part ends up at job.OutputPath.
func (d *Downloader) streamSplit(ctx context.Context, job *utils.DownloadJob, resp *http.Response, progressCh chan<- progressEvent) ([]string, int64, error) {
	var parts []string
	var current *os.File
	var currentSize int64
	openNext := func() error {
		if current != nil {
			if err := current.Close(); err != nil {
				return err
			}
			current = nil
		}
		partPath := fmt.Sprintf("%s.part%d", job.OutputPath, len(parts)+1)
		f, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		parts = append(parts, partPath)
		current = f
		currentSize = 0
		return nil
	}
	write := func(data []byte) error {
		for len(data) > 0 {
			if current == nil || currentSize >= job.SplitSize {
				if err := openNext(); err != nil {
					return err
				}
			}
			n := min(int64(len(data)), job.SplitSize-currentSize)
			if _, err := current.Write(data[:n]); err != nil {
				return err
			}
			currentSize += n
			data = data[n:]
		}
		return nil
	}

	written, err := d.readChunks(ctx, job, resp.Body, job.TotalSize, progressCh, write)
	if current != nil {
		if closeErr := current.Close(); err == nil {
			err = closeErr
		}
	}
	if err == nil && job.TotalSize > 0 && written != job.TotalSize {
		err = fmt.Errorf("size mismatch: expected %d bytes, got %d", job.TotalSize, written)
	}
	if err != nil {
		progressCh <- progressEvent{n: -written}
		removeFiles(parts...)
		return nil, 0, err
	}

	switch len(parts) {
	case 0:
		f, err := os.Create(job.OutputPath)
		if err != nil {
			return nil, 0, err
		}
		f.Close()
		parts = []string{job.OutputPath}
	case 1:
		if err := os.Rename(parts[0], job.OutputPath); err != nil {
			return nil, 0, err
		}
		parts = []string{job.OutputPath}
	default:
		log.Debug().Str("op", "downloader/split").Msgf("wrote %d parts for %s", len(parts), job.OutputPath)
	}
	return parts, written, nil
}

// idleBody fails a read that waits longer than timeout for data by closing
// the underlying body.
type idleBody struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	stalled atomic.Bool
}

func (d *Downloader) watchIdle(body io.ReadCloser) io.ReadCloser {
	if d.opts.IdleTimeout <= 0 {
		return body
	}
	b := &idleBody{body: body, timeout: d.opts.IdleTimeout}
	b.timer = time.AfterFunc(b.timeout, func() {
		b.stalled.Store(true)
		body.Close()
	})
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if b.stalled.Load() {
		return n, errStalled
	}
	b.timer.Reset(b.timeout)
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	return b.body.Close()
}
