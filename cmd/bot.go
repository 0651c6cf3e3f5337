package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/teraleech/internal/cancel"
	"github.com/tanq16/teraleech/internal/queue"
	"github.com/tanq16/teraleech/internal/telegram"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot that queues share links for workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireBot(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api, err := telegram.NewBotAPI(cfg.BotToken, cfg.TelegramAPIEndpoint, cfg.RequestTimeout)
			if err != nil {
				return err
			}
			log.Info().Str("op", "cmd/bot").Str("username", api.Self.UserName).Msg("bot authorized")

			rdb := redisClient(cfg)
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
			client := asynq.NewClient(asynqRedisOpt(cfg))
			defer client.Close()

			active := queue.NewActiveIndex(rdb)
			bot := telegram.NewBot(api, telegram.NewClient(api), queue.NewEnqueuer(client, active), active, cancel.NewRedisStore(rdb))
			return bot.Run(ctx)
		},
	}
}
