// Command ingest processes server log files from disk, without going through
// the HTTP API. Useful for backfilling a fresh database from an archive of
// logs.
//
// Usage:
//
//	POSTGRES_URL=... ingest [-concurrency N] file.log [file.log ...]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rankforge/rankforge/internal/logic"
	"github.com/rankforge/rankforge/internal/parser"
	"github.com/rankforge/rankforge/internal/processor"
	"github.com/rankforge/rankforge/internal/storage"
)

func main() {
	concurrency := flag.Int("concurrency", 4, "number of files processed in parallel")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [-concurrency N] file.log [file.log ...]")
		os.Exit(2)
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalw("Postgres connection failed", "error", err)
	}
	defer pool.Close()

	store := storage.NewPostgres(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalw("Schema setup failed", "error", err)
	}
	rater := logic.NewRatingEngine(logger)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	for _, path := range flag.Args() {
		path := path
		g.Go(func() error {
			if err := ingestFile(ctx, path, store, rater, logger); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Infow("File ingested", "file", path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalw("Ingest failed", "error", err)
	}
	log.Infow("All files ingested", "files", flag.NArg())
}

func ingestFile(ctx context.Context, path string, store storage.Store, rater processor.Rater, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lines, err := parser.ReadLines(f, logger)
	if err != nil {
		return err
	}

	scanner := parser.NewScanner(lines, store, logger)
	pipe := processor.NewPipeline(store, rater, nil, logger)
	return scanner.Run(ctx, func(ev parser.Event) error {
		return pipe.HandleEvent(ctx, ev)
	})
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}
