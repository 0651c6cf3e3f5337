// Package pipeline runs one leech request end to end: resolve, download,
// split or segment when needed, upload, and always clean up.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/chat"
	"github.com/tanq16/teraleech/internal/downloader"
	"github.com/tanq16/teraleech/internal/progress"
	"github.com/tanq16/teraleech/internal/utils"
)

type Resolver interface {
	Resolve(ctx context.Context, shareURL string) ([]utils.FileDescriptor, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, job *utils.DownloadJob) (downloader.Result, error)
}

type Segmenter interface {
	Segment(ctx context.Context, path string, targetPartSize int64) ([]utils.Segment, error)
}

type Sender interface {
	Upload(ctx context.Context, chatID int64, file chat.File, caption string) (chat.MessageRef, error)
	UploadParts(ctx context.Context, chatID int64, name string, segments []utils.Segment, caption string, onPart func(index, total int)) ([]chat.MessageRef, error)
}

// Archiver keeps a copy of each downloaded file outside the chat.
type Archiver interface {
	Archive(ctx context.Context, jobID, path, name string) error
}

// Ledger remembers delivered files so a redelivered job skips them.
type Ledger interface {
	Delivered(ctx context.Context, key string) (bool, error)
	MarkDelivered(ctx context.Context, key string) error
}

type Options struct {
	DownloadDir      string
	UploadCeiling    int64
	SplitPartSize    int64
	SegmentThreshold int64
	SegmentTarget    int64
	ProgressInterval time.Duration
	LegacyInterval   time.Duration
}

type Deps struct {
	Resolver  Resolver
	Fetcher   Fetcher
	Segmenter Segmenter
	Sender    Sender
	Transport chat.Transport
	Archiver  Archiver // optional
	Ledger    Ledger   // optional
}

type Request struct {
	JobID           string
	ChatID          int64
	StatusMessageID int
	ShareURL        string
	Caption         string
	Cancel          utils.CancelFlag
}

type Summary struct {
	Files    int
	Skipped  int
	Messages []chat.MessageRef
}

type Pipeline struct {
	opts Options
	deps Deps
}

func New(opts Options, deps Deps) *Pipeline {
	return &Pipeline{opts: opts, deps: deps}
}

// Handle processes one request. Every error is reported to the chat status
// message before being returned; files of a folder are processed in order and
// the first failure ends the job.
func (p *Pipeline) Handle(ctx context.Context, req Request) (Summary, error) {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	logger := log.With().Str("job", req.JobID).Logger()
	if req.StatusMessageID == 0 {
		ref, err := p.deps.Transport.SendText(ctx, req.ChatID, "🔍 Resolving link...")
		if err != nil {
			logger.Warn().Str("op", "pipeline/handle").Err(err).Msg("could not send status message")
		}
		req.StatusMessageID = ref.MessageID
	} else {
		p.status(ctx, req, "🔍 Resolving link...")
	}
	if err := os.MkdirAll(p.opts.DownloadDir, 0755); err != nil {
		return Summary{}, p.fail(ctx, req, logger, fmt.Errorf("error creating download dir: %w", err))
	}

	var summary Summary
	files, err := p.deps.Resolver.Resolve(ctx, req.ShareURL)
	if err != nil {
		return summary, p.fail(ctx, req, logger, err)
	}
	logger.Info().Str("op", "pipeline/handle").Msgf("processing %d file(s) from %s", len(files), req.ShareURL)

	for i, fd := range files {
		key := fmt.Sprintf("%s/%d", req.JobID, i)
		if p.delivered(ctx, key, logger) {
			summary.Skipped++
			continue
		}
		if req.Cancel != nil && req.Cancel.Cancelled() {
			return summary, p.fail(ctx, req, logger, downloader.ErrCancelled)
		}
		refs, err := p.processFile(ctx, req, logger, fd, i+1, len(files))
		summary.Messages = append(summary.Messages, refs...)
		if err != nil {
			return summary, p.fail(ctx, req, logger, err)
		}
		summary.Files++
		if p.deps.Ledger != nil {
			if err := p.deps.Ledger.MarkDelivered(ctx, key); err != nil {
				logger.Warn().Str("op", "pipeline/ledger").Err(err).Msg("could not record delivery")
			}
		}
	}

	p.status(ctx, req, finalStatus(files, summary))
	logger.Info().Str("op", "pipeline/handle").Msgf("job done: %d uploaded, %d skipped", summary.Files, summary.Skipped)
	return summary, nil
}

func finalStatus(files []utils.FileDescriptor, s Summary) string {
	var text string
	if len(files) == 1 && s.Files == 1 {
		text = "✅ File uploaded: " + files[0].Name
	} else {
		text = fmt.Sprintf("✅ Uploaded %d files", s.Files)
	}
	if s.Skipped > 0 {
		text += fmt.Sprintf(" (%d already delivered)", s.Skipped)
	}
	return text
}

func (p *Pipeline) processFile(ctx context.Context, req Request, logger zerolog.Logger, fd utils.FileDescriptor, index, count int) ([]chat.MessageRef, error) {
	token := ulid.Make().String()
	defer func() {
		if failed := utils.CleanJobFiles(p.opts.DownloadDir, token); failed > 0 {
			logger.Warn().Str("op", "pipeline/cleanup").Msgf("%d file(s) could not be removed", failed)
		}
	}()

	prefix := ""
	if count > 1 {
		prefix = fmt.Sprintf("[%d/%d] ", index, count)
	}
	dest := utils.JobFilePath(p.opts.DownloadDir, token, fd.Name)
	video := utils.IsVideo(fd.Name)
	job := &utils.DownloadJob{
		ID:         token,
		URL:        fd.DirectURL,
		Referer:    req.ShareURL,
		OutputPath: dest,
		TotalSize:  fd.Size,
		Cancel:     req.Cancel,
		StartTime:  time.Now(),
	}
	if !video && (fd.Size <= 0 || fd.Size > p.opts.UploadCeiling) {
		job.SplitSize = p.opts.SplitPartSize
	}

	meter := progress.NewMeter(
		progress.ChatSink{Transport: p.deps.Transport, ChatID: req.ChatID, MessageID: req.StatusMessageID},
		prefix+"📥 Downloading "+fd.Name, fd.Size,
		progress.WithInterval(p.opts.ProgressInterval),
	)
	legacy := progress.NewMeter(
		progress.LogSink{Logger: logger},
		fd.Name, fd.Size,
		progress.WithInterval(p.opts.LegacyInterval), progress.WithETA(), progress.WithCompact(),
	)
	job.ProgressFunc = meter.Report
	job.StatusFunc = legacy.Report
	res, err := p.deps.Fetcher.Fetch(ctx, job)
	if err == nil {
		meter.Finish(res.Size)
		legacy.Finish(res.Size)
	}
	meter.Close()
	legacy.Close()
	if err != nil {
		return nil, err
	}

	p.archive(ctx, req, logger, res.Paths, fd.Name)

	caption := req.Caption
	if caption == "" {
		caption = fd.Name
	}
	onPart := func(i, n int) {
		p.status(ctx, req, fmt.Sprintf("%s📤 Uploading %s part %d/%d", prefix, fd.Name, i, n))
	}

	switch {
	case len(res.Paths) > 1:
		segments := make([]utils.Segment, len(res.Paths))
		for i, path := range res.Paths {
			segments[i] = utils.Segment{Path: path, Index: i + 1}
		}
		return p.deps.Sender.UploadParts(ctx, req.ChatID, fd.Name, segments, caption, onPart)

	case video && res.Size > p.opts.SegmentThreshold:
		p.status(ctx, req, prefix+"✂️ Splitting "+fd.Name+" into parts...")
		segments, err := p.deps.Segmenter.Segment(ctx, dest, p.opts.SegmentTarget)
		if err != nil {
			return nil, err
		}
		if err := os.Remove(dest); err != nil {
			logger.Debug().Str("op", "pipeline/segment").Err(err).Msg("could not remove source after segmentation")
		}
		return p.deps.Sender.UploadParts(ctx, req.ChatID, fd.Name, segments, caption, onPart)

	default:
		p.status(ctx, req, prefix+"📤 Uploading "+fd.Name+"...")
		ref, err := p.deps.Sender.Upload(ctx, req.ChatID, chat.File{Path: res.Paths[0], Name: fd.Name}, caption)
		if err != nil {
			return nil, err
		}
		return []chat.MessageRef{ref}, nil
	}
}

func (p *Pipeline) archive(ctx context.Context, req Request, logger zerolog.Logger, paths []string, name string) {
	if p.deps.Archiver == nil {
		return
	}
	for i, path := range paths {
		archiveName := name
		if len(paths) > 1 {
			archiveName = fmt.Sprintf("%s.part%d", name, i+1)
		}
		if err := p.deps.Archiver.Archive(ctx, req.JobID, path, archiveName); err != nil {
			logger.Warn().Str("op", "pipeline/archive").Err(err).Msgf("could not archive %s", archiveName)
		}
	}
}

func (p *Pipeline) delivered(ctx context.Context, key string, logger zerolog.Logger) bool {
	if p.deps.Ledger == nil {
		return false
	}
	done, err := p.deps.Ledger.Delivered(ctx, key)
	if err != nil {
		logger.Warn().Str("op", "pipeline/ledger").Err(err).Msg("ledger lookup failed")
		return false
	}
	if done {
		logger.Info().Str("op", "pipeline/ledger").Msgf("%s already delivered, skipping", key)
	}
	return done
}

func (p *Pipeline) fail(ctx context.Context, req Request, logger zerolog.Logger, err error) error {
	logger.Error().Str("op", "pipeline/handle").Err(err).Msgf("job failed for %s", req.ShareURL)
	p.status(context.WithoutCancel(ctx), req, UserMessage(err))
	return err
}

// status edits the job's status message; failures are only logged.
func (p *Pipeline) status(ctx context.Context, req Request, text string) {
	if req.StatusMessageID == 0 {
		return
	}
	if err := p.deps.Transport.EditMessageText(ctx, req.ChatID, req.StatusMessageID, text); err != nil {
		log.Debug().Str("op", "pipeline/status").Err(err).Msg("status edit failed")
	}
}
