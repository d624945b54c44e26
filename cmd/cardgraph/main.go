package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	cardmcp "github.com/sanonone/cardgraph/internal/mcp"
	"github.com/sanonone/cardgraph/internal/server"
	"github.com/sanonone/cardgraph/pkg/config"
	"github.com/sanonone/cardgraph/pkg/dataset"
	"github.com/sanonone/cardgraph/pkg/engine"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address, overrides the config file (e.g. :9093)")
	mcpMode := flag.Bool("mcp", false, "Serve MCP tools over stdio instead of HTTP")
	cardsPath := flag.String("cards", "", "Build once from this cards JSON file and exit")
	embPath := flag.String("embeddings", "", "Embeddings JSON file for -cards")
	outPath := flag.String("out", "", "Output file for -cards (default stdout)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	// stdout carries MCP frames and one-shot output, so logs go to stderr.
	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	opts, err := cfg.EngineOptions(logger)
	if err != nil {
		logger.Error("invalid graph configuration", "error", err)
		os.Exit(1)
	}
	eng := engine.New(opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *cardsPath != "":
		err = buildOnce(ctx, eng, *cardsPath, *embPath, *outPath)
	case *mcpMode:
		logger.Info("serving MCP over stdio")
		err = cardmcp.NewMCPServer(eng, logger).Run(ctx, &mcp.StdioTransport{})
	default:
		err = serveHTTP(ctx, eng, cfg, logger)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func serveHTTP(ctx context.Context, eng *engine.Engine, cfg config.Config, logger *slog.Logger) error {
	srv := server.NewServer(eng, server.Options{
		Addr:           cfg.HTTPAddr,
		AuthToken:      cfg.AuthToken,
		RebuildTimeout: cfg.RebuildTimeout,
		Logger:         logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		srv.Shutdown()
		return nil
	}
}

func buildOnce(ctx context.Context, eng *engine.Engine, cardsPath, embPath, outPath string) error {
	cards, err := dataset.LoadCards(cardsPath)
	if err != nil {
		return err
	}
	emb, err := dataset.LoadEmbeddings(embPath)
	if err != nil {
		return err
	}
	res, err := eng.Build(ctx, cards, emb)
	if err != nil {
		return err
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
