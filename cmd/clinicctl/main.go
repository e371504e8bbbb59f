package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/datastore"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	authService "github.com/jwalitptl/clinic-api/internal/service/auth"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Administrative commands for the clinic API",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to config file")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createPrincipalCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	l := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: true, Output: os.Stderr})
	return cfg, l, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate only applies to the postgres driver, configured: %s", cfg.Database.Driver)
			}

			ctx := context.Background()
			db, err := postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Schema applied successfully.")
			return nil
		},
	}
}

func createPrincipalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-principal",
		Short: "Create an account of any role",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			phone, _ := cmd.Flags().GetString("phone")

			cfg, l, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, err := datastore.Open(ctx, cfg.Database, l)
			if err != nil {
				return err
			}
			defer store.Close()

			tokens := auth.NewJWTService(auth.Config{
				AccessSecret:  cfg.JWT.Secret,
				RefreshSecret: cfg.JWT.RefreshSecret,
				AccessTTL:     cfg.JWT.AccessTTL,
				RefreshTTL:    cfg.JWT.RefreshTTL,
				Issuer:        cfg.JWT.Issuer,
			})
			svc := authService.NewService(store.Principals, tokens, security.NewBcryptHasher(cfg.Security.BcryptCost),
				l, metrics.New(cfg.Metrics.Namespace, prometheus.NewRegistry()))

			p, err := svc.CreatePrincipal(ctx, &model.CreatePrincipalRequest{
				Email:    email,
				Password: password,
				Name:     name,
				Phone:    phone,
				Role:     model.Role(role),
			})
			if err != nil {
				return err
			}

			fmt.Printf("Created %s %s (%s)\n", p.Role, p.Email, p.ID)
			return nil
		},
	}
	cmd.Flags().String("email", "", "login email")
	cmd.Flags().String("password", "", "initial password (min 8 characters)")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("role", string(model.RoleAdmin), "admin, doctor or patient")
	cmd.Flags().String("phone", "", "phone number for SMS")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
