package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/orderrelay/feishu-order-relay/internal/biz"
	"github.com/orderrelay/feishu-order-relay/internal/conf"
	"github.com/orderrelay/feishu-order-relay/internal/data"
	"github.com/orderrelay/feishu-order-relay/internal/mcp"
)

const version = "v1.0.0"

// relay-mcp serves the admin tools over stdio against the relay's store.
// stdout carries the protocol, so logs go to stderr.
func main() {
	godotenv.Load()

	cfg := conf.LoadFromEnv()
	logger := cfg.NewLogger(os.Stderr)
	if err := cfg.ValidateStore(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := data.NewStoreRepositories(ctx, data.Options{
		DBPath:   cfg.Store.DBPath,
		RedisURL: cfg.Store.RedisURL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer repos.Close()

	uc := biz.NewUsecases(repos.Stores(), cfg.ToBizConfig(), logger)

	logger.Info().Str("db", cfg.Store.DBPath).Msg("serving admin tools over stdio")
	if err := mcp.NewServer(uc.Admin, cfg.Admin.MCPOperator, version, logger).Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("mcp server stopped")
	}
}
