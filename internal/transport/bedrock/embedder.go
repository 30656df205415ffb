// Package bedrock embeds text with Amazon Titan text embedding models on AWS Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/brycewhit13/booksearch/internal/domain"
	"github.com/brycewhit13/booksearch/internal/metrics"
)

// DefaultModelID is the Titan text embedding model used when none is configured.
const DefaultModelID = "amazon.titan-embed-text-v2:0"

const provider = "bedrock"

// invoker is the slice of the Bedrock runtime client the embedder needs.
type invoker interface {
	InvokeModel(
		ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options),
	) (*bedrockruntime.InvokeModelOutput, error)
}

// Config holds the Bedrock embedding settings.
type Config struct {
	Region     string
	ModelID    string
	Dimensions int
	Normalize  bool
	Logger     *zap.Logger
}

// Embedder implements domain.Embedder with one InvokeModel call per text.
// Titan has no batch endpoint; batches go through domain.BatchFallback.
type Embedder struct {
	client     invoker
	modelID    string
	dimensions int
	normalize  bool
	logger     *zap.Logger
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize,omitempty"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// NewEmbedder loads the default AWS credential chain for cfg.Region and creates a Titan embedder.
func NewEmbedder(ctx context.Context, cfg *Config) (*Embedder, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func newEmbedder(client invoker, cfg *Config) *Embedder {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		client:     client,
		modelID:    modelID,
		dimensions: cfg.Dimensions,
		normalize:  cfg.Normalize,
		logger:     logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	body, err := json.Marshal(titanRequest{
		InputText:  text,
		Dimensions: e.dimensions,
		Normalize:  e.normalize,
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal titan request: %w", err)
	}

	start := time.Now()

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.modelID),
		Body:        body,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})

	duration := time.Since(start)

	if err != nil {
		e.recordError("api_error")
		return domain.EmbeddingResult{}, parseAPIError(err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		e.recordError("bad_response")
		return domain.EmbeddingResult{}, fmt.Errorf("decode titan response: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(resp.Embedding) == 0 {
		e.recordError("empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.modelID, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.modelID).Observe(duration.Seconds())
	if resp.InputTextTokenCount > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(provider, e.modelID, "prompt").Add(float64(resp.InputTextTokenCount))
		metrics.EmbeddingTokensTotal.WithLabelValues(provider, e.modelID, "total").Add(float64(resp.InputTextTokenCount))
	}

	return domain.EmbeddingResult{
		Embedding:    resp.Embedding,
		PromptTokens: resp.InputTextTokenCount,
		TotalTokens:  resp.InputTextTokenCount,
	}, nil
}

func (e *Embedder) recordError(kind string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.modelID, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.modelID, kind).Inc()
}

// parseAPIError tags service failures with domain.ErrEmbeddingProviderError.
// Context errors stay unwrapped.
func parseAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("invoke titan: %w", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("bedrock API error %s: %s: %w",
			apiErr.ErrorCode(), apiErr.ErrorMessage(), domain.ErrEmbeddingProviderError)
	}
	return fmt.Errorf("invoke titan: %w: %w", domain.ErrEmbeddingProviderError, err)
}
