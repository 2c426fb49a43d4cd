package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"donationdesk/internal/config"
	"donationdesk/internal/logger"

	"github.com/spf13/cobra"
)

var envFile string

// @title           Donation Desk API
// @version         1.0
// @description     Admin backend for appeals, donations, fund utilization and donor communication.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "donationdesk",
		Short:         "Donation Desk admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd().RunE(cmd, args)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "configs/.env", "dotenv file loaded before the environment")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(createAdminCmd())
	return root
}

// bootstrap loads configuration and installs the logger shared by every command.
func bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := bootstrap()
			if err != nil {
				return err
			}
			return migrateUp(cfg)
		},
	}
}
