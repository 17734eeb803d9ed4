package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"scholaverse/apps/server/internal/config"
	"scholaverse/apps/server/internal/logging"
)

var (
	configPath string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scholaverse",
	Short: "Scholaverse attribute server",
	Long: `Scholaverse resolves the character-card attributes a student unlocks from
their learning scores, and lets teachers override the unlock tables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(cfg.Log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a config file (yaml, toml or json); environment variables use the SCHOLAVERSE_ prefix")
}
