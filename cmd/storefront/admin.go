package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus-qen/storefront/internal/storefront/auth"
	"github.com/marcus-qen/storefront/internal/storefront/customers"
	"github.com/marcus-qen/storefront/internal/storefront/database"
)

func createAdminCmd() *cobra.Command {
	var (
		email    string
		name     string
		password string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator, or promote and reset an existing account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			if !parsed.IsAdmin() {
				return fmt.Errorf("role must be admin or super_admin, got %q", role)
			}
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.OpenAndMigrate(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			c, created, err := customers.NewStore(db).EnsureAccount(cmd.Context(), email, name, password, parsed)
			if err != nil {
				return err
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (id %d)\n", verb, c.Role, c.Email, c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "admin or super_admin")
	return cmd
}
