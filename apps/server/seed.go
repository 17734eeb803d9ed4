package main

import (
	"github.com/spf13/cobra"

	"scholaverse/apps/server/internal/rulestore"
	"scholaverse/catalog"
)

var seedOverwrite bool

var seedCmd = &cobra.Command{
	Use:   "seed-rules",
	Short: "Copy the built-in catalog into the rule store",
	Long: `Copy every built-in catalog entry into the configured rule store as an
override rule. Existing rules are left alone unless --overwrite is set.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedOverwrite, "overwrite", false, "Replace options and labels of existing rules")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	store, storeMode, err := rulestore.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := rulestore.SeedFromCatalog(cmd.Context(), store, catalog.Default(),
		rulestore.SeedOptions{Overwrite: seedOverwrite})
	if err != nil {
		return err
	}
	logger.Info().
		Str("store_mode", storeMode).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("total", result.Total()).
		Msg("seeded rules")
	return nil
}
