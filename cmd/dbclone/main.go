package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kadirbelkuyu/dbclone/internal/app"
	"github.com/kadirbelkuyu/dbclone/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "dbclone",
	Short: "Clone a MySQL or PostgreSQL schema and its data into another database",
	Long: `dbclone recreates the structure of a source schema in a target database and
copies the rows of the configured tables. Everything is driven by a TOML (or YAML)
configuration file.`,
	Args: cobra.NoArgs,
	RunE: runClone,
}

var (
	configPath string
	noProgress bool
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bars during data copy")

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runClone(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := app.NewService()
	service.ShowProgress = !noProgress
	return service.Run(ctx, cfg)
}
