package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cliplens/cliplens/internal/analyze"
	"github.com/cliplens/cliplens/internal/config"
	"github.com/cliplens/cliplens/internal/fetch"
	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/schemas"
	"github.com/cliplens/cliplens/internal/scrape"
	"github.com/cliplens/cliplens/internal/server"
	"github.com/cliplens/cliplens/internal/store"
	"github.com/cliplens/cliplens/internal/transcribe"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the analysis pipeline over REST and SSE.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	ctx := cmd.Context()

	analyzer, err := analyze.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	defer analyzer.Close()

	transcriber, err := transcribe.NewClient(cfg.OpenAIAPIKey,
		transcribe.WithMaxBytes(cfg.MaxMediaBytes),
		transcribe.WithModel(cfg.TranscribeModel),
	)
	if err != nil {
		return fmt.Errorf("failed to create transcriber: %w", err)
	}

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}

	var db *store.DB
	if cfg.HasDatabase() {
		db, err = store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure database schema: %w", err)
		}
	} else {
		log.Printf("[serve] DATABASE_URL not set, running without persistence")
	}

	newOrchestrator := func(userID string) *pipeline.Orchestrator {
		var archiver pipeline.Archiver
		if db != nil {
			archiver = db.ForUser(userID)
		}
		return pipeline.New(pipeline.Options{
			Fetcher:            fetcher,
			Prober:             transcriber,
			Transcriber:        transcriber,
			Analyzer:           analyzer,
			ValidateFinal:      schemas.ValidateAnalysis,
			Archiver:           archiver,
			MaxMediaBytes:      cfg.MaxMediaBytes,
			MaxTranscriptChars: cfg.MaxTranscriptChars,
		})
	}

	srv, err := server.New(server.Options{
		Port:               cfg.Port,
		PasswordHash:       cfg.AccessPasswordHash,
		JWTSecret:          cfg.JWTSecret,
		JWTExpirationHours: cfg.JWTExpirationHours,
		NewOrchestrator:    newOrchestrator,
		Chat:               analyzer,
		DB:                 db,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case s := <-sig:
			log.Printf("[serve] received %v, shutting down", s)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newFetcher picks the metadata source: the hosted actor when a token is
// configured, otherwise the page scraper (with an optional headless browser
// fallback for pages that render their meta tags client-side).
func newFetcher(cfg *config.Config) (pipeline.MetadataFetcher, error) {
	if cfg.HasApify() {
		opts := []scrape.ApifyOption{}
		if cfg.ApifyActorID != "" {
			opts = append(opts, scrape.WithActorID(cfg.ApifyActorID))
		}
		return scrape.NewApifyClient(cfg.ApifyToken, opts...)
	}

	log.Printf("[serve] APIFY_TOKEN not set, using page scraper")
	pageOpts := []scrape.PageOption{scrape.WithVerbose(cfg.Verbose)}
	if cfg.UseBrowser {
		pageOpts = append(pageOpts, scrape.WithRenderer(fetch.WithBrowser))
	} else {
		pageOpts = append(pageOpts, scrape.WithRenderer(nil))
	}
	return scrape.NewPageScraper(pageOpts...), nil
}
