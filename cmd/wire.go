package cmd

import (
	"context"
	"fmt"
	u "net/url"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/chat"
	"github.com/tanq16/teraleech/internal/config"
	"github.com/tanq16/teraleech/internal/downloader"
	"github.com/tanq16/teraleech/internal/mirror"
	"github.com/tanq16/teraleech/internal/pipeline"
	"github.com/tanq16/teraleech/internal/resolver"
	"github.com/tanq16/teraleech/internal/segmenter"
	"github.com/tanq16/teraleech/internal/uploader"
	"github.com/tanq16/teraleech/internal/utils"
)

// httpClientConfig splits credentials out of the proxy URL.
func httpClientConfig(c config.Config) utils.HTTPClientConfig {
	hc := utils.HTTPClientConfig{Timeout: c.RequestTimeout, ProxyURL: c.ProxyURL}
	parsed, err := u.Parse(c.ProxyURL)
	if c.ProxyURL != "" && err == nil && parsed.User != nil {
		hc.ProxyUsername = parsed.User.Username()
		if password, set := parsed.User.Password(); set {
			hc.ProxyPassword = password
		}
		parsed.User = nil
		hc.ProxyURL = parsed.String()
	}
	return hc
}

// buildPipeline wires every stage from the config. ledger may be nil.
func buildPipeline(ctx context.Context, c config.Config, transport chat.Transport, ledger pipeline.Ledger) (*pipeline.Pipeline, error) {
	if err := c.RequireResolver(); err != nil {
		return nil, err
	}
	deps := pipeline.Deps{
		Resolver: resolver.New(resolver.Options{
			PrimaryAPIURL: c.PrimaryAPIURL,
			FolderAPIURL:  c.FolderAPIURL,
			Probe:         true,
			Timeout:       c.RequestTimeout,
		}),
		Fetcher: downloader.New(downloader.Options{
			ChunkSize:         c.ChunkSize,
			MaxFileSize:       c.MaxFileSize,
			DualLaneThreshold: c.DualLaneThreshold,
			HTTPClientConfig:  httpClientConfig(c),
		}),
		Segmenter: segmenter.New(segmenter.Options{
			FFmpegPath:         c.FFmpegPath,
			FFprobePath:        c.FFprobePath,
			TargetPartSize:     c.SegmentTarget,
			SafetyMargin:       c.SegmentMargin,
			Ceiling:            c.UploadCeiling,
			MinSegmentTime:     c.SegmentMinTime,
			MaxSegmentTime:     c.SegmentMaxTime,
			DefaultSegmentTime: c.SegmentDefaultTime,
		}, nil),
		Sender:    uploader.New(transport, uploader.Options{Ceiling: c.UploadCeiling, BackupChatID: c.BackupChatID}),
		Transport: transport,
		Ledger:    ledger,
	}
	if c.S3Bucket != "" {
		archiver, err := mirror.NewS3Archiver(ctx, mirror.Options{
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3Endpoint,
			Prefix:   c.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("error setting up s3 mirror: %w", err)
		}
		deps.Archiver = archiver
		log.Info().Str("op", "cmd/wire").Msgf("mirroring downloads to s3://%s/%s", c.S3Bucket, c.S3Prefix)
	}
	return pipeline.New(pipeline.Options{
		DownloadDir:      c.DownloadDir,
		UploadCeiling:    c.UploadCeiling,
		SplitPartSize:    c.SplitPartSize,
		SegmentThreshold: c.SegmentThreshold,
		SegmentTarget:    c.SegmentTarget,
		ProgressInterval: c.ProgressInterval,
		LegacyInterval:   c.LegacyInterval,
	}, deps), nil
}

func redisClient(c config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
}

func asynqRedisOpt(c config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}
