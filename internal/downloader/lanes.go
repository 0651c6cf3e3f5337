package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/utils"
	"golang.org/x/sync/errgroup"
)

// fetchLanes splits [0,total) into two contiguous ranges, downloads both in
// parallel and concatenates them in order. Either lane failing aborts the
// whole transfer.
func (d *Downloader) fetchLanes(ctx context.Context, job *utils.DownloadJob, referer string, total int64, progressCh chan<- progressEvent) error {
	mid := (total - 1) / 2
	lanes := []utils.DownloadChunk{
		{ID: 0, StartByte: 0, EndByte: mid},
		{ID: 1, StartByte: mid + 1, EndByte: total - 1},
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range lanes {
		lane := &lanes[i]
		lane.TempPath = fmt.Sprintf("%s.lane%d", job.OutputPath, lane.ID)
		g.Go(func() error {
			if err := d.fetchLane(gctx, job, lane, referer, total, progressCh); err != nil {
				lane.LastError = err
				return &laneError{lane: lane.ID, err: err}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = assemble(job.OutputPath, lanes, total)
	}
	removeFiles(lanes[0].TempPath, lanes[1].TempPath)
	if err != nil {
		progressCh <- progressEvent{n: -(lanes[0].Downloaded + lanes[1].Downloaded)}
		removeFiles(job.OutputPath)
		if errors.Is(err, ErrCancelled) {
			return ErrCancelled
		}
		return err
	}
	return nil
}

func (d *Downloader) fetchLane(ctx context.Context, job *utils.DownloadJob, lane *utils.DownloadChunk, referer string, total int64, progressCh chan<- progressEvent) error {
	lane.StartTime = time.Now()
	req, err := d.newRequest(ctx, job, referer)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", lane.StartByte, lane.EndByte))
	resp, err := d.laneClient.Do(req)
	if err != nil {
		if cerr := checkCancel(ctx, job); cerr != nil {
			return cerr
		}
		return fmt.Errorf("error requesting range: %w", err)
	}
	resp.Body = d.watchIdle(resp.Body)
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusForbidden:
		return errForbidden
	case http.StatusOK:
		return errRangeUnsupported
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Range") == "" {
		return errMissingContentRange
	}

	file, err := os.OpenFile(lane.TempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	written, err := d.readChunks(ctx, job, resp.Body, total, progressCh, func(b []byte) error {
		_, werr := file.Write(b)
		return werr
	})
	lane.Downloaded = written
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	expected := lane.EndByte - lane.StartByte + 1
	if written != expected {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, written)
	}
	lane.Completed = true
	lane.FinishTime = time.Now()
	log.Debug().Str("op", "downloader/lanes").Msgf("lane %d finished %s in %s", lane.ID, utils.FormatBytes(uint64(written)), lane.FinishTime.Sub(lane.StartTime).Round(time.Millisecond))
	return nil
}

func assemble(dest string, lanes []utils.DownloadChunk, total int64) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	var written int64
	for _, lane := range lanes {
		in, err := os.Open(lane.TempPath)
		if err != nil {
			out.Close()
			return fmt.Errorf("error opening lane %d: %w", lane.ID, err)
		}
		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			return fmt.Errorf("error copying lane %d: %w", lane.ID, err)
		}
		if n != lane.EndByte-lane.StartByte+1 {
			out.Close()
			return fmt.Errorf("lane %d size mismatch: expected %d, got %d", lane.ID, lane.EndByte-lane.StartByte+1, n)
		}
		written += n
	}
	if err := out.Close(); err != nil {
		return err
	}
	if written != total {
		return fmt.Errorf("assembled size mismatch: expected %d, got %d", total, written)
	}
	return nil
}
