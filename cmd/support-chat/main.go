package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/supportchat/pkg/chat"
	"github.com/go-go-golems/supportchat/pkg/config"
	"github.com/go-go-golems/supportchat/pkg/inference"
	"github.com/go-go-golems/supportchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/supportchat/pkg/webchat"
)

func main() {
	var (
		configPath string
		addr       string
		dbPath     string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "support-chat",
		Short: "Customer-support chat relay in front of an LLM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, addr, dbPath, logLevel)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to supportchat.yaml")
	rootCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath, addr, dbPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", cfg.LogLevel)
	}
	zerolog.SetGlobalLevel(level)
	logger := log.With().Str("component", "support-chat").Logger()

	dsn, err := chatstore.SQLiteDSNForFile(cfg.Database.Path)
	if err != nil {
		return err
	}
	store, err := chatstore.NewSQLiteStore(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing chat store")
		}
	}()
	logger.Info().Str("db", cfg.Database.Path).Msg("chat store opened")

	prompts, err := config.LoadPrompts(cfg.Chat.PromptsPath)
	if err != nil {
		return err
	}

	generator := inference.NewReplyGenerator(inference.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		SystemPrompt:   prompts.SystemPrompt,
		MaxReplyTokens: cfg.LLM.MaxReplyTokens,
		Temperature:    cfg.LLM.Temperature,
		RequestTimeout: cfg.LLM.RequestTimeout(),
	})

	assembler, err := chat.NewContextAssembler(store, cfg.Chat.ContextWindow)
	if err != nil {
		return err
	}
	svc, err := chat.NewService(chat.ServiceConfig{
		Store:         store,
		Assembler:     assembler,
		Generator:     generator,
		FallbackReply: prompts.FallbackReply,
	})
	if err != nil {
		return err
	}
	router, err := webchat.NewRouter(svc, log.Logger)
	if err != nil {
		return err
	}

	server := router.BuildHTTPServer(cfg.Server.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
