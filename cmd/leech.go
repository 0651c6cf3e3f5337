package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tanq16/teraleech/internal/cancel"
	"github.com/tanq16/teraleech/internal/chat"
	"github.com/tanq16/teraleech/internal/output"
	"github.com/tanq16/teraleech/internal/pipeline"
	"github.com/tanq16/teraleech/internal/telegram"
)

func newLeechCmd() *cobra.Command {
	var outDir, caption string
	var chatID int64
	cmd := &cobra.Command{
		Use:   "leech [URL]",
		Short: "Leech one share link into a local directory or a Telegram chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var transport chat.Transport
			if chatID != 0 {
				if err := cfg.RequireBot(); err != nil {
					return err
				}
				api, err := telegram.NewBotAPI(cfg.BotToken, cfg.TelegramAPIEndpoint, 0)
				if err != nil {
					return err
				}
				transport = telegram.NewClient(api)
			} else {
				transport = output.NewConsole(outDir, os.Stdout)
			}
			p, err := buildPipeline(context.Background(), cfg, transport, nil)
			if err != nil {
				return err
			}

			tok := cancel.NewToken()
			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			go func() {
				<-sigCtx.Done()
				tok.Cancel()
				// a second interrupt kills the process
				stop()
			}()

			summary, err := p.Handle(context.Background(), pipeline.Request{
				JobID:    uuid.NewString(),
				ChatID:   chatID,
				ShareURL: args[0],
				Caption:  caption,
				Cancel:   tok,
			})
			if err != nil {
				return fmt.Errorf("leech failed: %w", err)
			}
			if chatID == 0 {
				output.PrintSuccess(fmt.Sprintf("%d file(s) delivered to %s", summary.Files, outDir))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "leeched", "Directory that receives the files in local mode")
	cmd.Flags().Int64Var(&chatID, "chat", 0, "Telegram chat id to upload to instead of the local directory")
	cmd.Flags().StringVar(&caption, "caption", "", "Caption for the uploaded files")
	return cmd
}
