package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gwi.com/chat-dataset/internal/config"
	"gwi.com/chat-dataset/internal/dataset"
	"gwi.com/chat-dataset/internal/logging"
	"gwi.com/chat-dataset/internal/storage/s3"
	"gwi.com/chat-dataset/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "chatdataset",
	Short: "Chat persistence, pagination and ShareGPT dataset export",
}

func main() {
	// Load configuration
	envLoaded := config.LoadConfig()
	logger := logging.New(config.AppConfig.Env, config.AppConfig.LogLevel)
	if !envLoaded {
		logger.Debug().Msg("no .env file found, using environment only")
	}

	rootCmd.AddCommand(newServeCmd(logger), newExportCmd(logger))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the configured SQLite database behind the logging decorator.
func openStore(ctx context.Context, logger zerolog.Logger) (store.DataStore, error) {
	db, err := store.NewSQLiteStore(ctx, config.AppConfig.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}
	return store.WithLogging(db, logger), nil
}

// newExporter builds the exporter from config, attaching the bucket publisher
// when S3 is configured.
func newExporter(ctx context.Context, db store.DataStore, logger zerolog.Logger) (*dataset.Exporter, error) {
	cfg := config.AppConfig
	opts := []dataset.Option{dataset.WithRoleMapper(dataset.RoleMapperFor(cfg.ExportRolePolicy))}
	if !cfg.ExportUniquePaths {
		opts = append(opts, dataset.WithPathStrategy(dataset.DeterministicPath))
	}

	s3cfg := s3.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		Bucket:    cfg.S3BucketName,
	}
	if s3cfg.Enabled() {
		bucket, err := s3.New(s3cfg)
		if err != nil {
			return nil, err
		}
		if err := bucket.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, dataset.WithPublisher(bucket))
		logger.Info().Str("bucket", bucket.Bucket()).Msg("publishing exports to object storage")
	}

	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating export dir")
	}
	return dataset.NewExporter(db, cfg.ExportDir, logger, opts...), nil
}
