package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tanq16/teraleech/internal/cancel"
	"github.com/tanq16/teraleech/internal/output"
	"github.com/tanq16/teraleech/internal/pipeline"
	"github.com/tanq16/teraleech/internal/scheduler"
	"github.com/tanq16/teraleech/internal/utils"
	"gopkg.in/yaml.v3"
)

type BatchFile struct {
	Links []utils.BatchEntry `yaml:"links"`
}

func readBatchFile(path string) ([]utils.BatchEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading batch file: %w", err)
	}
	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %w", err)
	}
	var entries []utils.BatchEntry
	for _, e := range bf.Links {
		e.URL = strings.TrimSpace(e.URL)
		if e.URL == "" {
			output.PrintWarning("Skipping entry with an empty link")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func newBatchCmd() *cobra.Command {
	var outDir string
	var workers int
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Leech every link listed in a YAML file into a local directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := readBatchFile(args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no links found in %s", args[0])
			}
			if workers <= 0 {
				workers = cfg.WorkerConcurrency
			}

			mgr := output.NewManager()
			console := output.NewConsole(outDir, os.Stdout).WithManager(mgr)
			p, err := buildPipeline(context.Background(), cfg, console, nil)
			if err != nil {
				return err
			}

			tok := cancel.NewToken()
			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			go func() {
				<-sigCtx.Done()
				tok.Cancel()
				stop()
			}()

			output.PrintHeader(fmt.Sprintf("Leeching %d link(s) into %s with %d worker(s)", len(entries), outDir, workers))
			mgr.StartDisplay()
			res := scheduler.Run(sigCtx, entries, workers, func(ctx context.Context, e utils.BatchEntry) error {
				status, err := console.SendText(ctx, 0, e.URL)
				if err != nil {
					return err
				}
				_, err = p.Handle(context.Background(), pipeline.Request{
					JobID:           uuid.NewString(),
					StatusMessageID: status.MessageID,
					ShareURL:        e.URL,
					Caption:         e.Caption,
					Cancel:          tok,
				})
				return err
			})
			mgr.StopDisplay()
			if res.Skipped > 0 {
				output.PrintWarning(fmt.Sprintf("%d link(s) not started after interrupt", res.Skipped))
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d link(s) failed", res.Failed, len(entries))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "leeched", "Directory that receives the files")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Links processed in parallel (defaults to WORKER_CONCURRENCY)")
	return cmd
}
