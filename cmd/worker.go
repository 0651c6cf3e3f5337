package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/teraleech/internal/cancel"
	"github.com/tanq16/teraleech/internal/queue"
	"github.com/tanq16/teraleech/internal/telegram"
	"github.com/tanq16/teraleech/internal/utils"
)

func newWorkerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued leech jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireBot(); err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = cfg.WorkerConcurrency
			}
			ctx := context.Background()
			if n, err := utils.CleanStale(cfg.DownloadDir, 6*time.Hour); err != nil {
				log.Warn().Str("op", "cmd/worker").Err(err).Msg("could not sweep download dir")
			} else if n > 0 {
				log.Info().Str("op", "cmd/worker").Msgf("removed %d stale file(s)", n)
			}

			api, err := telegram.NewBotAPI(cfg.BotToken, cfg.TelegramAPIEndpoint, 0)
			if err != nil {
				return err
			}
			rdb := redisClient(cfg)
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
			p, err := buildPipeline(ctx, cfg, telegram.NewClient(api), queue.NewRedisLedger(rdb))
			if err != nil {
				return err
			}
			handler := queue.NewHandler(p, queue.HandlerOptions{
				Registry: cancel.NewRegistry(),
				Store:    cancel.NewRedisStore(rdb),
				Active:   queue.NewActiveIndex(rdb),
			})
			srv, mux := queue.NewServer(asynqRedisOpt(cfg), concurrency, handler)
			log.Info().Str("op", "cmd/worker").Msgf("worker starting with concurrency %d", concurrency)
			return srv.Run(mux)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "Jobs processed in parallel (defaults to WORKER_CONCURRENCY)")
	return cmd
}
