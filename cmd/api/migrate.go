package main

import (
	"salon/internal/infra/db"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != "postgres" {
		return oops.Code("CONFIG_INVALID").Errorf("migrate needs STORE_DRIVER=postgres")
	}

	gormDB, closeFn, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	cmd.Println("Running migrations...")
	if err := db.Migrate(gormDB); err != nil {
		return err
	}
	cmd.Println("Migrations completed")
	return nil
}
