package main

import (
	"fmt"

	"donationdesk/internal/database"
	"donationdesk/internal/repository"
	"donationdesk/internal/service"

	"github.com/spf13/cobra"
)

func createAdminCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the first super admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := database.NewConnection(cfg.DSN(), cfg.DBAutoMigrate)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			users := service.NewUserService(
				repository.NewUserRepository(db),
				repository.NewAuditRepository(db),
				repository.NewTransactionManager(db),
				cfg.JWTSigningKey(),
				cfg.JWTTTL,
			)
			user, created, err := users.EnsureAdmin(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			if !created {
				log.Warn("user already exists, nothing to do", "email", user.Email, "role", user.Role)
				return nil
			}
			log.Info("super admin created", "id", user.ID, "email", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Super Admin", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
