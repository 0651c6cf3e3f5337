// Package uploader delivers local files to a chat, choosing the streaming
// video path for video extensions and the document path otherwise.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/chat"
	"github.com/tanq16/teraleech/internal/utils"
)

var ErrOverCeiling = errors.New("file exceeds upload ceiling")

type UploadError struct {
	Name      string
	Part      int // 1-based; 0 for a single-file upload
	Transient bool
	Err       error
}

func (e *UploadError) Error() string {
	if e.Part > 0 {
		return fmt.Sprintf("upload failed for %s part %d: %v", e.Name, e.Part, e.Err)
	}
	return fmt.Sprintf("upload failed for %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Options struct {
	Ceiling      int64
	BackupChatID int64
}

type Uploader struct {
	transport chat.Transport
	opts      Options
}

func New(transport chat.Transport, opts Options) *Uploader {
	return &Uploader{transport: transport, opts: opts}
}

// Upload sends one file. The local file is left in place.
func (u *Uploader) Upload(ctx context.Context, chatID int64, file chat.File, caption string) (chat.MessageRef, error) {
	ref, err := u.send(ctx, chatID, file, caption)
	if err != nil {
		return chat.MessageRef{}, &UploadError{Name: file.Name, Transient: chat.IsTransient(err), Err: err}
	}
	return ref, nil
}

// UploadParts sends segments in index order with a "Part i/N" caption suffix,
// deleting each local file as soon as its send succeeds. The first failure
// stops the sequence; parts already delivered stay delivered.
func (u *Uploader) UploadParts(ctx context.Context, chatID int64, name string, segments []utils.Segment, caption string, onPart func(index, total int)) ([]chat.MessageRef, error) {
	ordered := append([]utils.Segment(nil), segments...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	refs := make([]chat.MessageRef, 0, len(ordered))
	total := len(ordered)
	for i, seg := range ordered {
		if err := ctx.Err(); err != nil {
			return refs, &UploadError{Name: name, Part: i + 1, Err: err}
		}
		if onPart != nil {
			onPart(i+1, total)
		}
		file := chat.File{Path: seg.Path, Name: PartName(name, i+1, total)}
		ref, err := u.send(ctx, chatID, file, partCaption(caption, i+1, total))
		if err != nil {
			log.Error().Str("op", "uploader/parts").Err(err).Msgf("part %d/%d of %s failed", i+1, total, name)
			return refs, &UploadError{Name: name, Part: i + 1, Transient: chat.IsTransient(err), Err: err}
		}
		refs = append(refs, ref)
		if err := os.Remove(seg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("op", "uploader/parts").Err(err).Msgf("could not remove %s", seg.Path)
		}
	}
	return refs, nil
}

func (u *Uploader) send(ctx context.Context, chatID int64, file chat.File, caption string) (chat.MessageRef, error) {
	info, err := os.Stat(file.Path)
	if err != nil {
		return chat.MessageRef{}, err
	}
	if u.opts.Ceiling > 0 && info.Size() > u.opts.Ceiling {
		return chat.MessageRef{}, fmt.Errorf("%w: %s > %s", ErrOverCeiling, utils.FormatBytes(uint64(info.Size())), utils.FormatBytes(uint64(u.opts.Ceiling)))
	}
	var ref chat.MessageRef
	if utils.IsVideo(file.Name) {
		ref, err = u.transport.SendVideo(ctx, chatID, file, caption, true)
	} else {
		ref, err = u.transport.SendDocument(ctx, chatID, file, caption)
	}
	if err != nil {
		return chat.MessageRef{}, err
	}
	log.Info().Str("op", "uploader/send").Msgf("sent %s (%s)", file.Name, utils.FormatBytes(uint64(info.Size())))
	u.backup(ctx, ref)
	return ref, nil
}

// backup copies a delivered message to the archive chat; failures only log.
func (u *Uploader) backup(ctx context.Context, ref chat.MessageRef) {
	if u.opts.BackupChatID == 0 || ref.ChatID == u.opts.BackupChatID {
		return
	}
	if _, err := u.transport.CopyMessage(ctx, u.opts.BackupChatID, ref); err != nil {
		log.Warn().Str("op", "uploader/backup").Err(err).Msg("could not copy message to backup chat")
	}
}

// PartName is the display name of part i of n, e.g. "movie.part2.mp4".
func PartName(name string, i, n int) string {
	if n <= 1 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s.part%d%s", strings.TrimSuffix(name, ext), i, ext)
}

func partCaption(caption string, i, n int) string {
	suffix := fmt.Sprintf("Part %d/%d", i, n)
	if caption == "" {
		return suffix
	}
	return caption + "\n\n" + suffix
}
