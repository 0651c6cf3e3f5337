package pipeline

import (
	"errors"

	"github.com/tanq16/teraleech/internal/downloader"
	"github.com/tanq16/teraleech/internal/resolver"
	"github.com/tanq16/teraleech/internal/segmenter"
	"github.com/tanq16/teraleech/internal/uploader"
)

// UserMessage maps a phase error to the one line shown in the chat.
func UserMessage(err error) string {
	var (
		resErr *resolver.ResolutionError
		dlErr  *downloader.DownloadError
		segErr *segmenter.SegmentError
		upErr  *uploader.UploadError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, downloader.ErrCancelled):
		return "🛑 Download cancelled."
	case errors.As(err, &resErr):
		return "❌ Could not fetch file info. Check the link and try again."
	case errors.Is(err, downloader.ErrTooLarge):
		return "❌ File is too large to leech."
	case errors.As(err, &dlErr):
		return "❌ Download failed. The file host refused or dropped the transfer."
	case errors.As(err, &segErr):
		return "❌ Could not split the video into uploadable parts."
	case errors.As(err, &upErr):
		if upErr.Transient {
			return "❌ Upload timed out or was rate limited. Please try again later."
		}
		if errors.Is(err, uploader.ErrOverCeiling) {
			return "❌ File is larger than the upload limit."
		}
		return "❌ Upload failed."
	default:
		return "❌ Something went wrong while processing the link."
	}
}
