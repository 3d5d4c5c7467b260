package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/chains/renvm"
	"github.com/sisu-network/renbridge/client"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/core"
	"github.com/sisu-network/renbridge/database"
	"github.com/sisu-network/renbridge/metrics"
	"github.com/sisu-network/renbridge/server"
)

func loadConfig() *config.Config {
	err := godotenv.Load()
	if err != nil {
		log.Warn("Cannot load .env file, err = ", err)
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "./renbridge.toml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}

	// Secrets are kept out of the config file.
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DbPassword = password
	}

	return cfg
}

func initialize(cfg *config.Config) (*core.Processor, *metrics.Metrics) {
	// Connect DB and run migrations.
	db := database.NewDb(cfg)
	err := db.Init()
	if err != nil {
		panic(err)
	}

	gatewayClient := client.NewClient(cfg.GatewayServerUrl)
	go gatewayClient.TryDial()

	m := metrics.NewMetrics()
	processor := core.NewProcessor(cfg, db, gatewayClient, renvm.NewClient(cfg.RenVM), m)
	if err := processor.InitChains(os.Getenv("SIGNER_PRIVATE_KEY")); err != nil {
		panic(err)
	}

	if err := processor.Start(); err != nil {
		panic(err)
	}

	return processor, m
}

func main() {
	cfg := loadConfig()
	processor, m := initialize(cfg)

	handler, err := server.NewRpcHandler(server.NewApi(processor))
	if err != nil {
		panic(err)
	}

	s := server.NewServer(handler, m.Handler(), cfg.ServerPort)
	s.Run()
}
