// Command seed-knowledge embeds a YAML seed of documents and vehicles into
// the knowledge tables. The seed is read from disk or, with -s3, from
// KNOWLEDGE_BUCKET.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	"github.com/wolfman30/autolead-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/autolead-ai-platform/internal/app/bootstrap"
	"github.com/wolfman30/autolead-ai-platform/internal/config"
	"github.com/wolfman30/autolead-ai-platform/internal/knowledge"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err := run(os.Args[1:], cfg, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, cfg *config.Config, logger *logging.Logger) error {
	fs := flag.NewFlagSet("seed-knowledge", flag.ContinueOnError)
	file := fs.String("file", "", "seed file path, or object key with -s3")
	fromS3 := fs.Bool("s3", false, "read the seed from KNOWLEDGE_BUCKET")
	tenant := fs.String("tenant", "", "override the seed's tenant_id")
	timeout := fs.Duration("timeout", 10*time.Minute, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	var fetcher knowledge.SourceFetcher = knowledge.FileFetcher{}
	if *fromS3 {
		if cfg.KnowledgeBucket == "" {
			return fmt.Errorf("-s3 requires KNOWLEDGE_BUCKET")
		}
		fetcher = knowledge.NewS3Fetcher(s3.NewFromConfig(awsCfg), cfg.KnowledgeBucket)
	}
	data, err := fetcher.Fetch(ctx, *file)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", *file, err)
	}
	seed, err := knowledge.ParseSeedForTenant(data, *tenant)
	if err != nil {
		return err
	}

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	indexer := knowledge.NewIndexer(knowledge.NewPostgresStore(pool), mainconfig.NewEmbedder(awsCfg, cfg))
	res, err := indexer.Load(ctx, seed, *file)
	if err != nil {
		return err
	}
	logger.Info("knowledge seeded", "tenant_id", seed.TenantID, "documents", res.Documents, "items", res.Items)
	return nil
}
