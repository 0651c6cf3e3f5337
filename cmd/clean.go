package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/teraleech/internal/output"
	"github.com/tanq16/teraleech/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "clean [job-token]",
		Short: "Remove leftover files from the download directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				failed := utils.CleanJobFiles(cfg.DownloadDir, args[0])
				if failed > 0 {
					return fmt.Errorf("%d file(s) could not be removed", failed)
				}
				output.PrintSuccess(fmt.Sprintf("Files of %s cleaned up", args[0]))
				return nil
			}
			n, err := utils.CleanStale(cfg.DownloadDir, olderThan)
			if err != nil {
				return err
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d stale file(s) from %s", n, cfg.DownloadDir))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Only remove files not modified for this long")
	return cmd
}
