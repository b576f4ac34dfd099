package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/agents"
	"ufo-trading-engine/internal/api"
	"ufo-trading-engine/internal/broker"
	"ufo-trading-engine/internal/database"
	"ufo-trading-engine/internal/engine"
	"ufo-trading-engine/internal/events"
	"ufo-trading-engine/internal/logging"
	"ufo-trading-engine/internal/pricing"
	"ufo-trading-engine/internal/reinforce"
	"ufo-trading-engine/internal/vault"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--sample-config" {
		if err := config.GenerateSampleConfig("config.sample.json"); err != nil {
			log.Fatalf("Failed to write sample configuration: %v", err)
		}
		log.Println("Wrote config.sample.json")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	})
	logging.SetDefault(logger)
	mainLog := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Broker credentials can live in Vault instead of the config file.
	if vaultClient, err := vault.NewClient(cfg.VaultConfig); err != nil {
		log.Fatalf("Vault configured but unreachable: %v", err)
	} else if vaultClient != nil {
		creds, err := vaultClient.GetBrokerCredentials(ctx)
		if err != nil {
			log.Fatalf("Failed to read broker credentials from Vault: %v", err)
		}
		cfg.BrokerConfig.Login = creds.Login
		cfg.BrokerConfig.Password = creds.Password
		if creds.Server != "" {
			cfg.BrokerConfig.Server = creds.Server
		}
		mainLog.Info("Broker credentials loaded from Vault")
	}

	var client broker.Client
	if cfg.BrokerConfig.MockMode {
		mainLog.Warn("Running against the simulated broker")
		client = broker.NewMockClient(10000)
	} else {
		client = broker.NewBridgeClient(cfg.BrokerConfig)
	}

	// Broker connectivity at startup is the one non-negotiable dependency.
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := client.Ping(pingCtx); err != nil {
		cancel()
		log.Fatalf("Broker unreachable at startup: %v", err)
	}
	cancel()

	db, err := database.Connect(ctx, cfg.DatabaseConfig)
	if err != nil {
		log.Fatalf("Database configured but unavailable: %v", err)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			mainLog.Warn("Redis unavailable, cooldowns stay in memory", "error", err.Error())
			redisClient = nil
		}
	}

	cache := pricing.NewSnapshotCache()
	bus := events.NewEventBus()

	var trader *agents.Trader
	var riskApprover, fundApprover *agents.Approver
	if cfg.AgentConfig.Enabled {
		llm := agents.NewClient(cfg.AgentConfig)
		trader = agents.NewTrader(llm, logger)
		riskApprover = agents.NewRiskApprover(llm, logger)
		fundApprover = agents.NewFundApprover(llm, logger)
	} else {
		mainLog.Info("Decision agents disabled, running position management only")
	}

	eng := engine.New(engine.Options{
		Config:       cfg,
		Log:          logger,
		Client:       client,
		Cache:        cache,
		Repo:         repo,
		Bus:          bus,
		Trader:       trader,
		RiskApprover: riskApprover,
		FundApprover: fundApprover,
		Cooldowns:    reinforce.NewCooldownLedger(redisClient),
	})

	stream := broker.NewTickStream(cfg.BrokerConfig.StreamURL, cfg.BrokerConfig.SymbolSuffix, cache, logger)
	go stream.Run(ctx)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, eng, repo, bus, logger)
		go func() {
			if err := server.Start(); err != nil {
				mainLog.Error("Status API failed", "error", err.Error())
			}
		}()
	}

	if err := eng.Run(ctx); err != nil {
		log.Fatalf("Engine failed to start: %v", err)
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			mainLog.Warn("Status API shutdown incomplete", "error", err.Error())
		}
	}
	mainLog.Info("Shutdown complete")
}
