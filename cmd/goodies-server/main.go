package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adrianco/the-goodies/internal/config"
	"github.com/adrianco/the-goodies/internal/logging"
	"github.com/adrianco/the-goodies/pkg/api"
	"github.com/adrianco/the-goodies/pkg/conflict"
	"github.com/adrianco/the-goodies/pkg/store"
	"github.com/adrianco/the-goodies/pkg/syncengine"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	root := &cobra.Command{
		Use:     "goodies-server",
		Short:   "Authoritative sync server for the-goodies graph",
		Version: version,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.AddCommand(startCmd())
	root.AddCommand(hashSecretCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func hashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret <secret>",
		Short: "Bcrypt-hash a device provisioning secret for api.provisioning_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := api.HashProvisioningSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the sync server",
		RunE:  runStart,
	}
	cmd.Flags().String("listen", "", "override api.listen from config")
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("listen") {
		cfg.API.Listen, _ = cmd.Flags().GetString("listen")
	}

	logger := logging.Init(cfg.Logging, "goodies-server")

	pgCfg := &store.PostgresConfig{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		Database:        cfg.Postgres.Database,
		Username:        cfg.Postgres.Username,
		Password:        cfg.Postgres.Password,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		MaxClockSkew:    cfg.Sync.MaxClockSkew,
	}
	st, err := store.NewPostgresStore(context.Background(), pgCfg)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer st.Close()

	resolver := conflict.New(conflict.Config{DefaultStrategy: conflict.Strategy(cfg.Sync.ConflictStrategy)})
	engine := syncengine.NewServerEngine(st, resolver)
	engine.MaxBatchSize = cfg.Sync.MaxBatchSize
	engine.Logger = logger

	srv := api.NewServer(engine, api.Config{
		Listen:           cfg.API.Listen,
		JWTSecret:        cfg.API.JWTSecret,
		TokenExpiry:      cfg.API.TokenExpiry,
		ProvisioningHash: cfg.API.ProvisioningHash,
		MaxBodySize:      cfg.API.MaxBodySize,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	logger.Info().Str("listen", cfg.API.Listen).Msg("goodies-server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-sigCh:
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}
