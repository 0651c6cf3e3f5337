package utils

import (
	"time"
)

// FileDescriptor is one downloadable file produced by link resolution.
// Size is 0 when the backend did not report it.
type FileDescriptor struct {
	Name      string
	DirectURL string
	Size      int64
}

type CancelFlag interface {
	Cancelled() bool
}

type DownloadJob struct {
	ID         string
	URL        string
	Referer    string
	Headers    map[string]string
	OutputPath string
	TotalSize  int64
	SplitSize  int64 // roll over to a new part file at this size; 0 disables
	Downloaded int64
	StartTime  time.Time
	Cancel     CancelFlag
	// both receive every aggregated update; the first drives the chat
	// meter and the second the log line
	ProgressFunc func(downloaded, total int64)
	StatusFunc   func(downloaded, total int64)
}

func (j *DownloadJob) Cancelled() bool {
	return j.Cancel != nil && j.Cancel.Cancelled()
}

type DownloadChunk struct {
	ID         int
	StartByte  int64
	EndByte    int64
	Downloaded int64
	Completed  bool
	TempPath   string
	LastError  error
	StartTime  time.Time
	FinishTime time.Time
}

// Segment is one playable slice (or raw split part) of a larger file.
// Index is 1-based.
type Segment struct {
	Path  string
	Index int
	Size  int64
}

type BatchEntry struct {
	URL     string `yaml:"link"`
	Caption string `yaml:"caption,omitempty"`
}
