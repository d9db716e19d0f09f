package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gwi.com/chat-dataset/internal/api"
	"gwi.com/chat-dataset/internal/config"
	"gwi.com/chat-dataset/internal/core"
)

func newServeCmd(logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), logger)
		},
	}
}

func serve(ctx context.Context, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.AppConfig

	dbStore, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer dbStore.Close()

	// Title generation is optional; without a key chats keep a nil title.
	var titles core.TitleGenerator
	if cfg.GeminiAPIKey != "" {
		llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, logger)
		if err != nil {
			return err
		}
		defer llmService.Close()
		titles = llmService
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set, chat titles will not be generated")
	}

	chatService := core.NewChatService(dbStore, titles, logger, cfg.MaxPageSize)

	exporter, err := newExporter(ctx, dbStore, logger)
	if err != nil {
		return err
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, exporter, dbStore, cfg.DefaultPageSize, logger)
	router := api.NewRouter(apiHandler, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // exports are built inside the request
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", serverAddr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return errors.Wrapf(err, "could not listen on %s", serverAddr)
		}
		return nil
	case <-quit:
	}
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	// Titles in flight still write to the store, which closes after this.
	chatService.Wait()
	logger.Info().Msg("server exited gracefully")
	return nil
}
