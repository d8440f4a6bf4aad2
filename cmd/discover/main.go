package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/aggregator"
	"github.com/skypath/nichebot/internal/classifier"
	"github.com/skypath/nichebot/internal/config"
	"github.com/skypath/nichebot/internal/discovery"
	"github.com/skypath/nichebot/internal/providers"
	"github.com/skypath/nichebot/internal/storage"
)

// One-shot discovery run for a single query, useful for trying out a topic
// without waiting for the scheduler.
func main() {
	query := flag.String("query", "", "topic to search for")
	mode := flag.String("mode", "", "painpoint, trend or hybrid (defaults to DISCOVERY_MODE)")
	flag.Parse()

	if *query == "" {
		log.Fatal("usage: discover -query <topic> [-mode painpoint|trend|hybrid]")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *mode == "" {
		*mode = cfg.Mode
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	registry := providers.NewRegistry()
	for _, p := range []providers.Provider{
		providers.NewRedditProvider(cfg.RedditClientID, cfg.RedditClientSecret),
		providers.NewHackerNewsProvider(),
		providers.NewStackOverflowProvider(),
		providers.NewYouTubeProvider(cfg.YouTubeAPIKey),
	} {
		if err := registry.Register(p); err != nil {
			log.Fatalf("Failed to register provider: %v", err)
		}
	}

	collector := aggregator.New(registry, cfg.StableProviders, 4)
	analyzer := classifier.NewClient(
		cfg.ClassifierAPIKey,
		cfg.ClassifierBaseURL,
		cfg.ClassifierTier,
		cfg.BatchSize,
		time.Duration(cfg.BatchDelaySecs)*time.Second,
	)
	service := discovery.NewService(store, collector, analyzer, nil, cfg.Owner, cfg.FetchLimit)

	providerNames := append(append([]string{}, cfg.StableProviders...), cfg.OptionalProviders...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := service.Run(ctx, *query, *mode, providerNames)
	if err != nil {
		log.Fatalf("Discovery run failed: %v", err)
	}

	fmt.Printf("Run %s completed in %v\n", result.RunID, result.Duration.Round(time.Millisecond))
	fmt.Printf("Collected %d mentions (%d new, %d classified)\n", result.Collected, result.NewMentions, result.Classified)
	for provider, count := range result.ByProvider {
		fmt.Printf("  %-15s %d\n", provider, count)
	}

	fmt.Printf("\n%d niches:\n", len(result.Niches))
	for _, niche := range result.Niches {
		fmt.Printf("  %-30s opportunity=%.0f demand=%.0f growth=%.0f (pain=%d trend=%d)\n",
			niche.Name, niche.OpportunityScore, niche.DemandScore, niche.GrowthScore,
			niche.PainPointCount, niche.TrendCount)
	}
}
