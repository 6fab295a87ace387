package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/site-concierge/backend/internal/analysis/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/config"
	"github.com/zhouzirui/site-concierge/backend/internal/handler"
	replyModel "github.com/zhouzirui/site-concierge/backend/internal/model/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/service/ai"
	"github.com/zhouzirui/site-concierge/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg.Log)

	transcripts, flags, closeStore, err := openStores(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open chat storage")
	}
	defer closeStore()

	chatService := chat.NewService(transcripts, flags, cfg.Chat.SessionOptions())
	go chatService.Run(ctx)

	catalog := replyModel.NewMemoryStore(replyModel.Seed(), replyModel.SeedFallbacks())
	var src rand.Source
	if cfg.Chat.RandomSeed != 0 {
		src = rand.NewPCG(cfg.Chat.RandomSeed, cfg.Chat.RandomSeed)
	}
	selector := reply.NewSelectorFromStore(catalog, src)

	aiService, err := ai.NewService(ctx, selector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reply service")
	}

	router := handler.NewRouter(handler.RouterConfig{
		Catalog:        catalog,
		ChatService:    chatService,
		Responder:      aiService,
		WidgetOptions:  cfg.Chat.WidgetOptions(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func setupLogging(cfg config.LogConfig) {
	level, err := cfg.ZerologLevel()
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func openStores(cfg config.StorageConfig) (chat.TranscriptStore, chat.FlagStore, func(), error) {
	if cfg.SQLitePath == "" {
		log.Info().Msg("CHAT_SQLITE_PATH not set, using in-memory storage")
		store := chat.NewMemoryStore()
		return store, store, func() {}, nil
	}

	dsn, err := chat.SQLiteDSNForFile(cfg.SQLitePath)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := chat.NewSQLiteStore(dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite storage")
	return store, store, func() { _ = store.Close() }, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("site concierge backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
