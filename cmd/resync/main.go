// Command resync refreshes the product snapshots of every record in the
// given stores from the catalog.
//
//	resync <store-id> [store-id...]
package main

import (
	"context"
	"fmt"
	"os"

	"stockpos/internal/app"
	"stockpos/internal/config"
	appctx "stockpos/internal/core/context"
	"stockpos/internal/core/id"
	"stockpos/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: resync <store-id> [store-id...]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Development()})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: appctx.SystemActor, IsAdmin: true})
	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize services", "error", err)
	}
	defer services.Close()

	failed := false
	for _, arg := range os.Args[1:] {
		storeID, err := id.Parse(arg)
		if err != nil {
			log.Errorw("invalid store id", "store_id", arg, "error", err)
			failed = true
			continue
		}
		report, err := services.Ledger.RefreshStoreSnapshots(ctx, storeID)
		if err != nil {
			log.Errorw("refresh failed", "store_id", storeID, "error", err)
			failed = true
			continue
		}
		fmt.Printf("%s refreshed=%d missing=%d failed=%d\n",
			storeID, report.Refreshed, report.Missing, report.Failed)
		if report.Failed > 0 {
			failed = true
		}
	}
	if failed {
		services.Close()
		os.Exit(1)
	}
}
