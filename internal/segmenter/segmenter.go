// Package segmenter cuts large videos into independently playable parts
// below the upload ceiling using stream-copy segmentation.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/utils"
)

var ErrNoSegments = errors.New("segmentation produced no output")
var ErrOversizedSegment = errors.New("segment exceeds upload ceiling after refinement")

type SegmentError struct {
	Path string
	Err  error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segmentation failed for %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

type Options struct {
	FFmpegPath         string
	FFprobePath        string
	TargetPartSize     int64
	SafetyMargin       int64
	Ceiling            int64
	MinSegmentTime     time.Duration
	MaxSegmentTime     time.Duration
	DefaultSegmentTime time.Duration
}

type Segmenter struct {
	opts   Options
	runner Runner
}

func New(opts Options, runner Runner) *Segmenter {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Segmenter{opts: opts, runner: runner}
}

// Segment splits path into parts of roughly targetPartSize bytes. A
// targetPartSize of 0 uses the configured target. Outputs sit next to the
// input as <stem>.seg000<ext>, <stem>.seg001<ext> and so on.
func (s *Segmenter) Segment(ctx context.Context, path string, targetPartSize int64) ([]utils.Segment, error) {
	if targetPartSize <= 0 {
		targetPartSize = s.opts.TargetPartSize
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &SegmentError{Path: path, Err: err}
	}
	segTime := s.opts.DefaultSegmentTime
	duration, err := s.probeDuration(ctx, path)
	if err != nil {
		log.Warn().Str("op", "segmenter/probe").Err(err).Msgf("using default segment time %s", segTime)
	} else {
		segTime = SegmentTime(info.Size(), duration, targetPartSize, s.opts)
	}

	segments, err := s.run(ctx, path, segTime)
	if err != nil {
		return nil, &SegmentError{Path: path, Err: err}
	}
	if s.opts.Ceiling > 0 && largest(segments) > s.opts.Ceiling {
		log.Warn().Str("op", "segmenter/segment").Msgf("segment over ceiling at %s, retrying at half length", segTime)
		removeSegments(segments)
		segTime = max(segTime/2, time.Second)
		segments, err = s.run(ctx, path, segTime)
		if err != nil {
			return nil, &SegmentError{Path: path, Err: err}
		}
		if largest(segments) > s.opts.Ceiling {
			removeSegments(segments)
			return nil, &SegmentError{Path: path, Err: ErrOversizedSegment}
		}
	}
	log.Info().Str("op", "segmenter/segment").Msgf("split %s into %d parts (%s each)", filepath.Base(path), len(segments), segTime)
	return segments, nil
}

// SegmentTime derives the per-part duration from the average bitrate so each
// part lands near target-margin bytes, clamped to the configured bounds.
func SegmentTime(size int64, duration float64, target int64, opts Options) time.Duration {
	if size <= 0 || duration <= 0 {
		return opts.DefaultSegmentTime
	}
	bytesPerSecond := float64(size) / duration
	seconds := float64(target-opts.SafetyMargin) / bytesPerSecond
	d := time.Duration(math.Round(seconds*1000)) * time.Millisecond
	if opts.MinSegmentTime > 0 && d < opts.MinSegmentTime {
		d = opts.MinSegmentTime
	}
	if opts.MaxSegmentTime > 0 && d > opts.MaxSegmentTime {
		d = opts.MaxSegmentTime
	}
	return d
}

func (s *Segmenter) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := s.runner.Output(ctx, s.opts.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(out))
	duration, err := strconv.ParseFloat(value, 64)
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return duration, nil
}

// SegmentArgs builds the stream-copy segmentation command line.
func SegmentArgs(input, pattern string, segTime time.Duration) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-map", "0",
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(segTime.Seconds(), 'f', 3, 64),
		"-reset_timestamps", "1",
		"-avoid_negative_ts", "make_zero",
		pattern,
	}
}

func outputPattern(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return strings.ReplaceAll(stem, "%", "%%") + ".seg%03d" + ext
}

// listOutputs finds <stem>.segNNN<ext> files next to path, ordered by number.
func listOutputs(path string) ([]string, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	prefix := strings.TrimSuffix(filepath.Base(path), ext) + ".seg"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type output struct {
		path string
		n    int
	}
	var outputs []output
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) || len(name) < len(prefix)+len(ext) {
			continue
		}
		n, err := strconv.Atoi(name[len(prefix) : len(name)-len(ext)])
		if err != nil || n < 0 {
			continue
		}
		outputs = append(outputs, output{path: filepath.Join(dir, name), n: n})
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].n < outputs[j].n })
	paths := make([]string, len(outputs))
	for i, o := range outputs {
		paths[i] = o.path
	}
	return paths, nil
}

func (s *Segmenter) run(ctx context.Context, path string, segTime time.Duration) ([]utils.Segment, error) {
	// leftovers from an earlier run would be picked up as outputs
	if stale, _ := listOutputs(path); len(stale) > 0 {
		for _, p := range stale {
			os.Remove(p)
		}
	}
	if err := s.runner.Run(ctx, s.opts.FFmpegPath, SegmentArgs(path, outputPattern(path), segTime)...); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	matches, err := listOutputs(path)
	if err != nil {
		return nil, err
	}
	var segments []utils.Segment
	for i, p := range matches {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		segments = append(segments, utils.Segment{Path: p, Index: i + 1, Size: info.Size()})
	}
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	return segments, nil
}

func largest(segments []utils.Segment) int64 {
	var m int64
	for _, seg := range segments {
		m = max(m, seg.Size)
	}
	return m
}

func removeSegments(segments []utils.Segment) {
	for _, seg := range segments {
		if err := os.Remove(seg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("op", "segmenter/cleanup").Err(err).Msgf("could not remove %s", seg.Path)
		}
	}
}
