package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"breakoutBot/config"
	"breakoutBot/internal/adapters/fyersclient"
	"breakoutBot/internal/adapters/logger"
	"breakoutBot/internal/adapters/sqlite"
	"breakoutBot/internal/engine"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Broker Client (Fyers Adapter)
	broker, err := fyersclient.New(fyersclient.Config{
		ClientID:       cfg.ClientID,
		Tokens:         fyersclient.StaticToken(cfg.AccessToken),
		BaseURL:        cfg.BaseURL,
		WSURL:          cfg.WSURL,
		Logger:         appLogger,
		SimulateOrders: cfg.SimulateOrders,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Fyers client")
		log.Fatalf("FATAL: Failed to initialize Fyers client: %v", err)
	}
	if cfg.SimulateOrders {
		appLogger.Warn(context.Background(), "Running in simulation mode: orders will not reach the broker")
	}

	// 5. Initialize and run the session engine
	eng := engine.New(cfg, broker, repo, appLogger)

	// SIGINT/SIGTERM cancels the context; the engine force-closes any
	// open positions before Run returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		appLogger.Error(context.Background(), err, "Trading session exited with error")
		log.Fatalf("FATAL: Trading session exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Trading session finished.")
}
