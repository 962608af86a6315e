package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/api"
	"github.com/orderrelay/feishu-order-relay/internal/biz"
	"github.com/orderrelay/feishu-order-relay/internal/conf"
	"github.com/orderrelay/feishu-order-relay/internal/data"
	"github.com/orderrelay/feishu-order-relay/internal/infra/feishu"
	"github.com/orderrelay/feishu-order-relay/internal/infra/openai"
	"github.com/orderrelay/feishu-order-relay/internal/server"
	"github.com/orderrelay/feishu-order-relay/internal/service"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	cfg := conf.LoadFromEnv()
	logger := cfg.NewLogger(os.Stdout)
	if envErr != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	aiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)

	// Initialize repository layer
	repos, err := data.NewRepositories(ctx, data.Options{
		DBPath:   cfg.Store.DBPath,
		RedisURL: cfg.Store.RedisURL,
	}, feishuClient, aiClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer repos.Close()

	logger.Info().
		Str("db", cfg.Store.DBPath).
		Str("model", aiClient.Model()).
		Str("prompts", cfg.PromptsPath).
		Str("timezone", cfg.Location.String()).
		Msg("configuration loaded")

	// Initialize usecase layer
	uc := biz.NewUsecases(repos.Stores(), cfg.ToBizConfig(), logger)

	// Admin HTTP API and card callbacks
	apiServer := api.NewServer(uc.Admin, api.Options{
		Addr:              cfg.API.Addr,
		JWTSecret:         cfg.API.JWTSecret,
		AdminOpenIDs:      cfg.Admin.OpenIDs,
		VerificationToken: cfg.Feishu.VerificationToken,
		CORSOrigins:       cfg.API.CORSOrigins,
	}, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Maintenance loops
	maintCfg := service.DefaultMaintenanceConfig()
	maintCfg.RefreshInterval = cfg.Store.RulesRefresh
	maintCfg.OrderRetention = time.Duration(cfg.Store.OrderRetentionDays) * 24 * time.Hour
	maintCfg.Location = cfg.Location
	maint := service.NewMaintenance(uc.Cache, uc.Guard, repos.Orders, repos.Quota, maintCfg, logger)

	srv := server.NewFeishuServer(feishuClient, feishuClient, uc.Pipeline, uc.Cache, uc.Admin, repos.Rooms, repos.Delivery, server.Options{
		AdminChatID:       cfg.Admin.ChatID,
		ImportJoinedChats: cfg.Admin.ImportJoinedChats,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msg("starting order relay")
		errCh <- srv.Start(ctx)
	}()
	maint.Start(ctx)

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("listener stopped")
		}
	}

	shutdown(logger, srv, maint, apiServer)
}

func shutdown(logger zerolog.Logger, srv *server.FeishuServer, maint *service.Maintenance, apiServer *api.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.Stop()
	maint.Stop()
	if err := apiServer.Stop(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	logger.Info().Msg("stopped")
}
