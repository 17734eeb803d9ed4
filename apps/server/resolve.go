package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"scholaverse/apps/server/internal/logging"
	"scholaverse/apps/server/internal/rulestore"
	"scholaverse/scoring"
)

var (
	resolveUnit     string
	resolveQuiz     float64
	resolveHomework float64
	resolveClass    string
	resolveStatic   bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the options a score set unlocks",
	Example: `  scholaverse resolve --unit unit_4 --quiz 95 --class mage
  scholaverse resolve --unit unit_2 --quiz 95 --homework 45 --static`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveUnit, "unit", "", "Unit code, e.g. unit_1")
	resolveCmd.Flags().Float64Var(&resolveQuiz, "quiz", 0, "Quiz score")
	resolveCmd.Flags().Float64Var(&resolveHomework, "homework", 0, "Homework score (optional)")
	resolveCmd.Flags().StringVar(&resolveClass, "class", "", "Chosen class for weapon affinity")
	resolveCmd.Flags().BoolVar(&resolveStatic, "static", false, "Use the built-in catalog only, ignoring the rule store")
	_ = resolveCmd.MarkFlagRequired("unit")
	_ = resolveCmd.MarkFlagRequired("quiz")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	var rules scoring.RuleSource = rulestore.NewMemoryStore()
	if !resolveStatic {
		store, _, err := rulestore.NewStoreFromConfig(cfg.Store)
		if err != nil {
			return err
		}
		defer store.Close()
		rules = store
	}

	req := scoring.Request{Group: resolveUnit, Quiz: resolveQuiz, Class: resolveClass}
	if cmd.Flags().Changed("homework") {
		hw := resolveHomework
		req.Homework = &hw
	}

	resolver := scoring.NewResolver(rules, scoring.WithLogger(logging.Component(logger, "resolver")))
	resolved, err := resolver.Resolve(cmd.Context(), req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"unit_code": resolveUnit,
		"source":    resolved.Source(),
		"options":   resolved,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
