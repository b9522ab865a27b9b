package main

import (
	"context"
	"os"

	"github.com/anime-shed/image-analyser-go/internal/config"
	"github.com/anime-shed/image-analyser-go/internal/container"
	"github.com/anime-shed/image-analyser-go/internal/logger"
)

func main() {
	root := newRootCmd(openContainer)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openContainer(ctx context.Context) (app, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	// Logs go to stderr so stdout only carries results
	logger.Logger.SetOutput(os.Stderr)
	logger.Configure(cfg.LogLevel, cfg.LogFormat)

	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}
