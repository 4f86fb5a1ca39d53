package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ビルド時に -ldflags "-X main.version=..." で入れる
var version = "dev"

var envFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "salon-api",
		Short:         "Salon backend API (auth, recovery, catalog)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newCleanupCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
