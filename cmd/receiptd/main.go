package main

import (
	"context"
	"flag"
	"thsr-receipts/lib/configutil"
	configlibsql "thsr-receipts/lib/configutil/libsql"
	"thsr-receipts/lib/osutil"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/receiptstore"
	"thsr-receipts/lib/serviceutil"
	"thsr-receipts/lib/telemetry"
	"thsr-receipts/services/organizer"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	Port      int                 `json:"port"`
	Downloads string              `json:"downloads"`
	Index     configlibsql.Struct `json:"index"`
	// SyncMinutes is how often the index is reconciled with the disk.
	SyncMinutes int `json:"sync_minutes"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	configPath := flag.String("config", "config.json5", "The configuration file.")
	flag.Parse()

	ctx, cancel := osutil.SignalContext(context.Background())
	defer cancel()

	telemetry.InitSlog(*verbose)
	_, err := telemetry.SetupFromEnv(ctx, "receiptd")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer telemetry.Shutdown(context.Background())

	cfg, err := configutil.ReadConfigWithDefaults(*configPath, Config{
		Port:        8000,
		Downloads:   receipts.DefaultRoot,
		SyncMinutes: 10,
	})
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	store, err := receiptstore.OpenIndex(ctx, cfg.Index, cfg.Downloads)
	if err != nil {
		serviceutil.Fatal("failed to open receipt index", err)
	}
	defer store.Close()

	telemetry.InstrumentPerfStats(ctx)

	service := organizer.NewService(organizer.Options{
		Root:         cfg.Downloads,
		Store:        store,
		SyncInterval: time.Duration(cfg.SyncMinutes) * time.Minute,
	})
	go service.SyncDaemon(ctx)

	handler := otelhttp.NewHandler(service.Handler(), "receiptd")
	err = serviceutil.StartHttpServer(ctx, cfg.Port, handler)
	if err != nil {
		serviceutil.Fatal("http server stopped", err)
	}
}
