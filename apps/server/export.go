package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scholaverse/apps/server/internal/export"
	"scholaverse/apps/server/internal/rulestore"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export-rules",
	Short: "Write every override rule to an XLSX workbook",
	Example: `  scholaverse export-rules --out rules.xlsx
  scholaverse export-rules --config prod.yaml --out -`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "attribute_rules.xlsx", "Output path, or - for stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	store, _, err := rulestore.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	rules, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if exportOut == "-" {
		return export.WriteRulesXLSX(cmd.OutOrStdout(), rules)
	}
	f, err := os.Create(exportOut)
	if err != nil {
		return err
	}
	if err := export.WriteRulesXLSX(f, rules); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info().Int("rules", len(rules)).Str("path", exportOut).Msg("exported rules")
	return nil
}
