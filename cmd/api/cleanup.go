package main

import (
	"salon/internal/app"

	"github.com/spf13/cobra"
)

// cron等から1回だけ掃除したいとき
func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired revoked tokens and one-time tokens once",
		RunE:  runCleanup,
	}
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	stores, closeStores, err := openStores(cfg, log, nil)
	if err != nil {
		return err
	}
	defer closeStores()

	a, err := app.New(cfg, stores, app.Externals{Log: log})
	if err != nil {
		return err
	}
	if err := a.NewSweeper().RunOnce(cmd.Context()); err != nil {
		return err
	}
	cmd.Println("Cleanup completed")
	return nil
}
