package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE:  runMigrate,
}

type migrator interface {
	Migrate(ctx context.Context) error
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backend, closeBackend, err := openBackend(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeBackend()

	m, ok := backend.(migrator)
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "Driver %s has no schema\n", cfg.Database.Driver)
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", cfg.Database.Driver)
	return nil
}
