package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/teraleech/internal/config"
	"github.com/tanq16/teraleech/internal/output"
	"github.com/tanq16/teraleech/internal/utils"
)

var (
	cfgPath string
	debug   bool
	cfg     config.Config
)

var TeraleechVersion = "dev"

var rootCmd = &cobra.Command{
	Use:          "teraleech",
	Short:        "Teraleech leeches Terabox share links into Telegram",
	Version:      TeraleechVersion,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = c
		utils.InitLogger(utils.LogOptions{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			File:   cfg.LogFile,
			Debug:  debug,
		})
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newBotCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newLeechCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}
