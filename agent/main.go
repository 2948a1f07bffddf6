package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imkonsowa/catalog-recommender/catalog"
	"github.com/imkonsowa/catalog-recommender/config"
	"github.com/imkonsowa/catalog-recommender/recommender"
	"github.com/tmc/langchaingo/llms/ollama"
)

func main() {
	cfg := config.LoadConfig()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))
	if cfg.Log.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := catalog.NewPg(cfg.Postgres.ConnStr())
	if err != nil {
		log.Fatal("failed to connect to postgres:", err)
	}
	defer db.Close()

	schema := recommender.NewSchema(cfg.Catalog.Table)
	columns, err := db.Columns(ctx, schema.Table)
	if err != nil {
		log.Fatal(err)
	}
	if err := schema.Validate(columns); err != nil {
		log.Fatal(err)
	}

	parserLLM, err := ollama.New(
		ollama.WithServerURL(cfg.Ollama.Address()),
		ollama.WithModel(cfg.Ollama.ParserModel),
		ollama.WithFormat("json"),
	)
	if err != nil {
		log.Fatal(err)
	}

	queryLLM, err := ollama.New(
		ollama.WithServerURL(cfg.Ollama.Address()),
		ollama.WithModel(cfg.Ollama.QueryModel),
	)
	if err != nil {
		log.Fatal(err)
	}

	contextLLM, err := ollama.New(
		ollama.WithServerURL(cfg.Ollama.Address()),
		ollama.WithModel(cfg.Ollama.ContextModel),
	)
	if err != nil {
		log.Fatal(err)
	}

	retry := recommender.RetryPolicy{
		Retries: cfg.Pipeline.MaxRetries,
		Delay:   cfg.Pipeline.RetryDelay,
	}

	composer, err := recommender.NewComposer(queryLLM, schema, recommender.ComposerOptions{
		Dialect:  cfg.Pipeline.Dialect,
		TopK:     cfg.Pipeline.TopK,
		Fallback: cfg.Pipeline.FallbackTemplate,
	})
	if err != nil {
		log.Fatal(err)
	}

	pipeline := recommender.NewPipeline(
		recommender.NewExtractor(parserLLM, retry),
		composer,
		recommender.NewExecutor(db, retry, catalog.IsTransient),
		recommender.NewSynthesizer(contextLLM),
		cfg.Pipeline.StageTimeout,
	)

	server := NewServer(pipeline, db.Ping)
	if err := server.Run(ctx, cfg.Server.Address(), 30*time.Second); err != nil {
		log.Fatalf("failed to run the agent: %v", err)
	}
}
