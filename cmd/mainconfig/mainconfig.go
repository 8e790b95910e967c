// Package mainconfig holds the wiring shared by the binaries: AWS SDK setup
// and construction of the embedding and generation gateways.
package mainconfig

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/autolead-ai-platform/internal/config"
	"github.com/wolfman30/autolead-ai-platform/internal/llm"
	"github.com/wolfman30/autolead-ai-platform/pkg/logging"
)

// EmbeddingCacheTTL bounds how long an embedding is reused for the same text.
const EmbeddingCacheTTL = 30 * time.Minute

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring. The endpoint override applies to S3 and
// SES only; Bedrock always talks to AWS.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case s3.ServiceID, sesv2.ServiceID:
					return aws.Endpoint{
						URL:               endpoint,
						PartitionID:       "aws",
						SigningRegion:     cfg.AWSRegion,
						HostnameImmutable: true,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}

	return awsCfg, nil
}

// NewEmbedder builds the cached Bedrock Titan embedder.
func NewEmbedder(awsCfg aws.Config, cfg *appconfig.Config) llm.Embedder {
	client := llm.NewBedrockEmbeddingClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockEmbeddingModelID, cfg.EmbeddingDimensions)
	return llm.NewCachedEmbedder(client, EmbeddingCacheTTL)
}

// NewGenerator builds the Bedrock generator with Gemini as fallback when a
// Gemini key is configured. With no Bedrock model, Gemini serves alone.
func NewGenerator(ctx context.Context, awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) (llm.Generator, error) {
	var gemini llm.LLMClient
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		client, err := llm.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		gemini = client
	}

	var client llm.LLMClient
	switch {
	case strings.TrimSpace(cfg.BedrockModelID) != "":
		client = llm.NewFallbackLLMClient(llm.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)), gemini, logger)
	case gemini != nil:
		client = gemini
	default:
		return nil, fmt.Errorf("mainconfig: BEDROCK_MODEL_ID or GEMINI_API_KEY is required")
	}

	return llm.NewGenerator(client, llm.GeneratorConfig{
		Model:       cfg.BedrockModelID,
		MaxTokens:   int32(cfg.LLMMaxTokens),
		Temperature: float32(cfg.LLMTemperature),
		TopP:        float32(cfg.LLMTopP),
	}), nil
}
