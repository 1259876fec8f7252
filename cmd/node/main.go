package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/escrowdex/params"
	"github.com/uhyunpark/escrowdex/pkg/api"
	"github.com/uhyunpark/escrowdex/pkg/exchange"
	"github.com/uhyunpark/escrowdex/pkg/ledger"
	"github.com/uhyunpark/escrowdex/pkg/storage"
	"github.com/uhyunpark/escrowdex/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load .env from current directory

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	store, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	led := ledger.NewManager(store)

	engine, err := exchange.NewEngine(exchange.Config{
		Address:    cfg.Exchange.Address,
		FeeRate:    cfg.Exchange.FeeRate,
		FeeAccount: cfg.Exchange.FeeAccount,
		Owner:      cfg.Exchange.Owner,
	}, led, store, util.RealClock{})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}
	engine.Logger = sugar

	sugar.Infow("node_starting",
		"exchange", cfg.Exchange.Address.Hex(),
		"fee_rate", cfg.Exchange.FeeRate.String(),
		"fee_account", cfg.Exchange.FeeAccount.Hex(),
		"owner", cfg.Exchange.Owner.Hex())

	apiServer := api.NewServer(engine, led, sugar)
	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr, cfg.Node.APIOrigins); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sugar.Info("shutting down")
}
