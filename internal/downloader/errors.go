package downloader

import (
	"errors"
	"fmt"
)

var ErrCancelled = errors.New("download cancelled")
var ErrTooLarge = errors.New("file exceeds maximum allowed size")

var errForbidden = errors.New("origin refused request (403)")
var errMissingContentRange = errors.New("missing Content-Range header")
var errRangeUnsupported = errors.New("origin ignored the range request")
var errStalled = errors.New("no data received within the idle timeout")

type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed: %v", e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// laneError marks a dual-lane failure; the whole job aborts without trying
// another referer.
type laneError struct {
	lane int
	err  error
}

func (e *laneError) Error() string {
	return fmt.Sprintf("lane %d: %v", e.lane, e.err)
}

func (e *laneError) Unwrap() error {
	return e.err
}
