package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/objmarket/params"
	"github.com/uhyunpark/objmarket/pkg/api"
	"github.com/uhyunpark/objmarket/pkg/market"
	"github.com/uhyunpark/objmarket/pkg/util"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	// Load config: YAML file, then .env, then environment
	cfg, err := params.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logFile := cfg.Node.LogFile
	if logFile == "" {
		logFile = "data/marketd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	for _, p := range cfg.Problems() {
		sugar.Warnw("config_problem", "problem", p)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := market.New(ctx, cfg, market.WithLogger(sugar))
	if err != nil {
		sugar.Fatalw("market_init_failed", "err", err)
	}
	defer app.Close()
	app.Start(ctx)

	// ---- API Server ----
	apiServer := api.NewServer(app, api.Options{
		Bus:     app.Bus(),
		Metrics: app.Metrics(),
		Logger:  sugar,
	})
	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// Progress logging loop
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := apiServer.Shutdown(shutdownCtx); err != nil {
				sugar.Warnw("api_shutdown_failed", "err", err)
			}
			cancel()
			sugar.Info("marketd_stopped")
			return
		case <-ticker.C:
			st := app.Listings(ctx, false)
			sugar.Infow("market_progress",
				"listings", len(st.Records),
				"listings_updated_at", st.UpdatedAt,
				"lifecycles", app.Coordinator().Registry().Len(),
				"ws_clients", apiServer.Hub().ClientCount())
		}
	}
}
