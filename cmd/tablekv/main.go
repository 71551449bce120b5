package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jacentio/tablekv/internal/app"
	"github.com/jacentio/tablekv/internal/config"
	"github.com/jacentio/tablekv/internal/logging"
	"github.com/jacentio/tablekv/internal/otel"
	"github.com/jacentio/tablekv/mirror"
)

const shutdownTimeout = 5 * time.Second

// main serves the store over MCP on stdio.
func main() {
	log.SetPrefix("[tablekv] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("failed to serve MCP: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol; logs go to stderr.
	logger, closeLogs := logging.New(os.Stderr, level, cfg.SeqURL)
	defer closeLogs()

	shutdownTracing, err := otel.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	var client mirror.API
	if cfg.MirrorEnabled() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	a, err := app.Build(ctx, cfg, logger, client)
	if err != nil {
		return err
	}

	if err := a.Server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
