package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/database"
	"github.com/iliyamo/thursday-diner/internal/diner"
	"github.com/iliyamo/thursday-diner/internal/repository"
	"github.com/iliyamo/thursday-diner/internal/seed"
	"github.com/iliyamo/thursday-diner/internal/service"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), false, func(ctx context.Context, _ *diner.Service, log *zap.Logger) error {
				log.Info("schema up to date", zap.Int("statements", len(database.Statements())))
				return nil
			})
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load restaurants from a YAML file; existing names are skipped",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), false, func(ctx context.Context, svc *diner.Service, log *zap.Logger) error {
				res, err := seed.Apply(ctx, svc, list, log)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d restaurants\n", res.Created, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "restaurants.yaml", "YAML file listing restaurants")
	return cmd
}

func newRevealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reveal",
		Short: "Run a single reveal pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), true, func(ctx context.Context, svc *diner.Service, log *zap.Logger) error {
				n, err := svc.RevealDue(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revealed %d registrants\n", n)
				return nil
			})
		},
	}
}

// withService opens and migrates the database, then hands fn a service on
// top of it.  With publish set, the service emits its events to RabbitMQ.
func withService(parent context.Context, publish bool, fn func(context.Context, *diner.Service, *zap.Logger) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, time.Minute)
	defer cancel()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	opts := []diner.Option{diner.WithLogger(log)}
	if publish {
		pub := service.NewPublisher(cfg.AMQPURL, log)
		defer pub.Close()
		opts = append(opts, diner.WithEvents(pub))
	}
	svc := diner.NewService(repository.NewRegistrantRepo(db), repository.NewRestaurantRepo(db), cfg.Reveal, opts...)
	return fn(ctx, svc, log)
}
