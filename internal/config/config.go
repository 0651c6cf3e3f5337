package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const MB = 1024 * 1024

// Config is loaded once at startup and treated as read-only afterwards.
// Sizes are stored in bytes.
type Config struct {
	BotToken            string `yaml:"bot_token"`
	TelegramAPIEndpoint string `yaml:"telegram_api_endpoint"`
	BackupChatID        int64  `yaml:"backup_chat_id"`

	PrimaryAPIURL string `yaml:"primary_api_url"`
	FolderAPIURL  string `yaml:"folder_api_url"`

	DownloadDir       string        `yaml:"download_dir"`
	MaxFileSize       int64         `yaml:"-"`
	DualLaneThreshold int64         `yaml:"-"`
	ChunkSize         int           `yaml:"-"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ProxyURL          string        `yaml:"proxy_url"`

	UploadCeiling int64 `yaml:"-"`
	SplitPartSize int64 `yaml:"-"`

	SegmentThreshold   int64         `yaml:"-"`
	SegmentTarget      int64         `yaml:"-"`
	SegmentMargin      int64         `yaml:"-"`
	SegmentMinTime     time.Duration `yaml:"-"`
	SegmentMaxTime     time.Duration `yaml:"-"`
	SegmentDefaultTime time.Duration `yaml:"-"`
	FFmpegPath         string        `yaml:"ffmpeg_path"`
	FFprobePath        string        `yaml:"ffprobe_path"`

	ProgressInterval time.Duration `yaml:"progress_interval"`
	LegacyInterval   time.Duration `yaml:"legacy_interval"`

	RedisAddr         string `yaml:"redis_addr"`
	RedisPassword     string `yaml:"redis_password"`
	RedisDB           int    `yaml:"redis_db"`
	WorkerConcurrency int    `yaml:"worker_concurrency"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// fileConfig mirrors the size knobs in megabytes the way operators write them.
type fileConfig struct {
	Config               `yaml:",inline"`
	MaxFileSizeMB        *int64 `yaml:"max_file_size_mb"`
	DualLaneThresholdMB  *int64 `yaml:"dual_lane_threshold_mb"`
	ChunkSizeKB          *int   `yaml:"chunk_size_kb"`
	UploadCeilingMB      *int64 `yaml:"upload_ceiling_mb"`
	SplitPartMB          *int64 `yaml:"split_part_mb"`
	SegmentThresholdMB   *int64 `yaml:"segment_threshold_mb"`
	SegmentTargetMB      *int64 `yaml:"segment_target_mb"`
	SegmentMarginMB      *int64 `yaml:"segment_margin_mb"`
	SegmentMinSeconds    *int   `yaml:"segment_min_seconds"`
	SegmentMaxSeconds    *int   `yaml:"segment_max_seconds"`
	SegmentDefaultSecond *int   `yaml:"segment_default_seconds"`
}

func Default() Config {
	return Config{
		TelegramAPIEndpoint: "https://api.telegram.org/bot%s/%s",
		DownloadDir:         "./downloads",
		MaxFileSize:         4096 * MB,
		DualLaneThreshold:   50 * MB,
		ChunkSize:           1024 * 1024,
		RequestTimeout:      3 * time.Minute,
		UploadCeiling:       50 * MB,
		SplitPartSize:       49 * MB,
		SegmentThreshold:    50 * MB,
		SegmentTarget:       45 * MB,
		SegmentMargin:       2 * MB,
		SegmentMinTime:      30 * time.Second,
		SegmentMaxTime:      time.Hour,
		SegmentDefaultTime:  5 * time.Minute,
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
		ProgressInterval:    2500 * time.Millisecond,
		LegacyInterval:      5 * time.Second,
		RedisAddr:           "localhost:6379",
		WorkerConcurrency:   2,
		S3Prefix:            "teraleech",
		LogLevel:            "info",
		LogFormat:           "console",
	}
}

// Load layers defaults, an optional YAML file, an optional .env file and the
// process environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("op", "config/load").Err(err).Msg("could not read .env file")
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	fc := fileConfig{Config: *cfg}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	*cfg = fc.Config
	setMB(&cfg.MaxFileSize, fc.MaxFileSizeMB)
	setMB(&cfg.DualLaneThreshold, fc.DualLaneThresholdMB)
	setMB(&cfg.UploadCeiling, fc.UploadCeilingMB)
	setMB(&cfg.SplitPartSize, fc.SplitPartMB)
	setMB(&cfg.SegmentThreshold, fc.SegmentThresholdMB)
	setMB(&cfg.SegmentTarget, fc.SegmentTargetMB)
	setMB(&cfg.SegmentMargin, fc.SegmentMarginMB)
	if fc.ChunkSizeKB != nil {
		cfg.ChunkSize = *fc.ChunkSizeKB * 1024
	}
	setSeconds(&cfg.SegmentMinTime, fc.SegmentMinSeconds)
	setSeconds(&cfg.SegmentMaxTime, fc.SegmentMaxSeconds)
	setSeconds(&cfg.SegmentDefaultTime, fc.SegmentDefaultSecond)
	return nil
}

func setMB(dst *int64, v *int64) {
	if v != nil {
		*dst = *v * MB
	}
}

func setSeconds(dst *time.Duration, v *int) {
	if v != nil {
		*dst = time.Duration(*v) * time.Second
	}
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, apply func(int64)) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		apply(n)
	}
	duration := func(key string, dst *time.Duration) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("BOT_TOKEN", &cfg.BotToken)
	str("TELEGRAM_API_ENDPOINT", &cfg.TelegramAPIEndpoint)
	integer("BACKUP_CHAT_ID", func(n int64) { cfg.BackupChatID = n })
	str("PRIMARY_API_URL", &cfg.PrimaryAPIURL)
	str("FOLDER_API_URL", &cfg.FolderAPIURL)
	str("DOWNLOAD_DIR", &cfg.DownloadDir)
	integer("MAX_FILE_SIZE_MB", func(n int64) { cfg.MaxFileSize = n * MB })
	integer("DUAL_LANE_THRESHOLD_MB", func(n int64) { cfg.DualLaneThreshold = n * MB })
	integer("CHUNK_SIZE_KB", func(n int64) { cfg.ChunkSize = int(n) * 1024 })
	duration("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	str("PROXY_URL", &cfg.ProxyURL)
	integer("UPLOAD_CEILING_MB", func(n int64) { cfg.UploadCeiling = n * MB })
	integer("SPLIT_PART_MB", func(n int64) { cfg.SplitPartSize = n * MB })
	integer("SEGMENT_THRESHOLD_MB", func(n int64) { cfg.SegmentThreshold = n * MB })
	integer("SEGMENT_TARGET_MB", func(n int64) { cfg.SegmentTarget = n * MB })
	integer("SEGMENT_MARGIN_MB", func(n int64) { cfg.SegmentMargin = n * MB })
	integer("SEGMENT_MIN_SECONDS", func(n int64) { cfg.SegmentMinTime = time.Duration(n) * time.Second })
	integer("SEGMENT_MAX_SECONDS", func(n int64) { cfg.SegmentMaxTime = time.Duration(n) * time.Second })
	integer("SEGMENT_DEFAULT_SECONDS", func(n int64) { cfg.SegmentDefaultTime = time.Duration(n) * time.Second })
	str("FFMPEG_PATH", &cfg.FFmpegPath)
	str("FFPROBE_PATH", &cfg.FFprobePath)
	duration("PROGRESS_INTERVAL", &cfg.ProgressInterval)
	duration("LEGACY_INTERVAL", &cfg.LegacyInterval)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	integer("REDIS_DB", func(n int64) { cfg.RedisDB = int(n) })
	integer("WORKER_CONCURRENCY", func(n int64) { cfg.WorkerConcurrency = int(n) })
	str("S3_BUCKET", &cfg.S3Bucket)
	str("S3_REGION", &cfg.S3Region)
	str("S3_ENDPOINT", &cfg.S3Endpoint)
	str("S3_PREFIX", &cfg.S3Prefix)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("LOG_FILE", &cfg.LogFile)
	return errors.Join(errs...)
}

// Validate checks the relationships between limits. Credentials are checked
// by the commands that need them.
func (c Config) Validate() error {
	var errs []error
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("download_dir must be set"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("max file size must be positive"))
	}
	if c.UploadCeiling <= 0 {
		errs = append(errs, errors.New("upload ceiling must be positive"))
	}
	if c.SplitPartSize <= 0 || c.SplitPartSize > c.UploadCeiling {
		errs = append(errs, errors.New("split part size must be positive and at most the upload ceiling"))
	}
	if c.SegmentTarget <= c.SegmentMargin {
		errs = append(errs, errors.New("segment target must exceed the safety margin"))
	}
	if c.SegmentTarget > c.UploadCeiling {
		errs = append(errs, errors.New("segment target must not exceed the upload ceiling"))
	}
	if c.SegmentThreshold > c.UploadCeiling {
		errs = append(errs, errors.New("segment threshold must not exceed the upload ceiling"))
	}
	if c.SegmentMinTime <= 0 || c.SegmentMinTime > c.SegmentMaxTime {
		errs = append(errs, errors.New("segment time bounds are invalid"))
	}
	if c.ProgressInterval <= 0 || c.LegacyInterval <= 0 {
		errs = append(errs, errors.New("progress intervals must be positive"))
	}
	if c.WorkerConcurrency <= 0 {
		errs = append(errs, errors.New("worker concurrency must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) RequireBot() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	return nil
}

func (c Config) RequireResolver() error {
	if c.PrimaryAPIURL == "" && c.FolderAPIURL == "" {
		return errors.New("PRIMARY_API_URL or FOLDER_API_URL is required")
	}
	return nil
}
