// cmd/ctxengine runs the market context service: HTTP snapshot API,
// post-close watchlist refresh and WebSocket push.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"marketcontext/config"
	"marketcontext/internal/ctxengine"
	"marketcontext/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init("ctxengine", logger.ParseLevel(cfg.LogLevel))

	params, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		log.Fatalf("[ctxengine] params: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := ctxengine.Open(ctx, cfg, params)
	if err != nil {
		log.Fatalf("[ctxengine] init failed: %v", err)
	}
	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[ctxengine] fatal: %v", err)
	}
}
