package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"scholaverse/apps/server/internal/auth"
	"scholaverse/apps/server/internal/config"
)

var (
	accountUsername string
	accountPassword string
	accountRole     string
)

var createAccountCmd = &cobra.Command{
	Use:   "create-account",
	Short: "Provision an account with a role",
	Long: `Provision an account directly in the auth store. Use it to bootstrap
teacher accounts, which cannot be created through self-registration.`,
	Example: `  scholaverse create-account --username ms_lin --password s3cretpw --role teacher`,
	RunE:    runCreateAccount,
}

func init() {
	createAccountCmd.Flags().StringVar(&accountUsername, "username", "", "Account username")
	createAccountCmd.Flags().StringVar(&accountPassword, "password", "", "Account password")
	createAccountCmd.Flags().StringVar(&accountRole, "role", string(auth.RoleStudent), "Role: student, teacher or admin")
	_ = createAccountCmd.MarkFlagRequired("username")
	_ = createAccountCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createAccountCmd)
}

func runCreateAccount(cmd *cobra.Command, args []string) error {
	role, err := auth.ParseRole(accountRole)
	if err != nil {
		return err
	}
	if cfg.Auth.Mode == config.StoreModeMemory {
		return errors.New("create-account needs a persistent auth mode (sqlite or postgres)")
	}

	service, _, err := auth.NewServiceFromConfig(cfg.Auth, cfg.Store)
	if err != nil {
		return err
	}
	defer service.Close()

	id, err := service.CreateAccount(accountUsername, accountPassword, role)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	logger.Info().Uint64("user_id", id).Str("username", accountUsername).Str("role", string(role)).Msg("account created")
	return nil
}
