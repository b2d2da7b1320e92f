package main

import (
	"candlecast/config"
	"candlecast/internal/app"
	"candlecast/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// run the broadcast pipeline
	if err := app.Start(cfg, log); err != nil {
		log.Fatal("candlecast failed", zap.Error(err))
	}

	select {}
}
