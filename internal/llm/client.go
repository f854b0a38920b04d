package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/evidence"
	"github.com/claimlens/backend/internal/metrics"
	"github.com/claimlens/backend/pkg/circuitbreaker"
	"github.com/claimlens/backend/pkg/logger"
	"github.com/claimlens/backend/pkg/retry"
)

// Client wraps the OpenAI-compatible API with a circuit breaker and retry
// policy. All verdicts, enhancements, and embeddings go through it.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	validate       *validator.Validate
	logger         *zap.Logger
}

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	log := logger.GetLogger()

	return &Client{
		api:            openai.NewClientWithConfig(apiCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		cb: circuitbreaker.New("llm", circuitbreaker.Config{
			MaxRequests:      3,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Logger:           log,
		}),
		retryConfig: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			Logger:       log,
		},
		validate: validator.New(),
		logger:   log,
	}
}

type completionRequest struct {
	systemPrompt string
	userPrompt   string
}

func (c *Client) complete(ctx context.Context, req completionRequest) (string, error) {
	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
				ResponseFormat: &openai.ChatCompletionResponseFormat{
					Type: openai.ChatCompletionResponseFormatTypeJSONObject,
				},
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: req.systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: req.userPrompt},
				},
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("empty completion response")
			}
			content = resp.Choices[0].Message.Content
			metrics.RecordLLMTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			return nil
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}

	return content, nil
}

// verdictWire is the JSON shape the verification prompt asks for.
type verdictWire struct {
	Verdict       string  `json:"verdict" validate:"required,oneof=TRUE FALSE MIXED UNVERIFIED"`
	Confidence    float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning     string  `json:"reasoning" validate:"required"`
	Supporting    []struct {
		Index   int    `json:"index"`
		Snippet string `json:"snippet"`
	} `json:"supporting"`
	Contradicting []struct {
		Index   int    `json:"index"`
		Snippet string `json:"snippet"`
	} `json:"contradicting"`
	NeedsExternalSearch  bool   `json:"needs_external_search"`
	SearchRationale      string `json:"search_rationale"`
	SuggestedSearchQuery string `json:"suggested_search_query"`
}

// Analyze runs one verification round-trip over the claim and evidence set.
// The returned Analysis carries both the verdict and the model's escalation
// decision.
func (c *Client) Analyze(ctx context.Context, claim string, ev evidence.Set) (*Analysis, error) {
	content, err := c.complete(ctx, completionRequest{
		systemPrompt: verificationSystemPrompt,
		userPrompt:   buildVerificationPrompt(claim, ev),
	})
	if err != nil {
		return nil, err
	}

	var wire verdictWire
	if err := json.Unmarshal([]byte(stripFences(content)), &wire); err != nil {
		c.logger.Warn("Failed to decode verdict response", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerdictParse, err)
	}
	if err := c.validate.Struct(&wire); err != nil {
		c.logger.Warn("Verdict response failed validation", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerdictParse, err)
	}

	analysis := &Analysis{
		Verdict:             Verdict(wire.Verdict),
		Confidence:          wire.Confidence,
		Rationale:           wire.Reasoning,
		NeedsExternalSearch: wire.NeedsExternalSearch,
		SearchRationale:     wire.SearchRationale,
		SuggestedQuery:      wire.SuggestedSearchQuery,
	}
	for _, ref := range wire.Supporting {
		if ref.Index < 0 || ref.Index >= len(ev) {
			continue
		}
		analysis.Supporting = append(analysis.Supporting, EvidenceRef{
			Index:   ref.Index,
			Source:  ev[ref.Index].SourceURL,
			Snippet: ref.Snippet,
		})
	}
	for _, ref := range wire.Contradicting {
		if ref.Index < 0 || ref.Index >= len(ev) {
			continue
		}
		analysis.Contradicting = append(analysis.Contradicting, EvidenceRef{
			Index:   ref.Index,
			Source:  ev[ref.Index].SourceURL,
			Snippet: ref.Snippet,
		})
	}

	return analysis, nil
}

func buildVerificationPrompt(claim string, ev evidence.Set) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s\n\nEvidence:\n", claim)
	for i, hit := range ev {
		fmt.Fprintf(&b, "[%d] (source: %s, score: %.2f", i, sourceLabel(hit.Item), hit.Score)
		if hit.TrustRank != nil {
			fmt.Fprintf(&b, ", trust rank: %d", *hit.TrustRank)
		}
		fmt.Fprintf(&b, ")\n%s\n\n", truncate(hit.Text, 1200))
	}
	return b.String()
}

func sourceLabel(item evidence.Item) string {
	if item.SourceURL != "" {
		return item.SourceURL
	}
	if item.SourceID != "" {
		return item.SourceID
	}
	return string(item.Origin)
}

// enhancementWire is the JSON shape the enhancement prompt asks for.
type enhancementWire struct {
	ClarifiedClaim      string   `json:"clarified_claim" validate:"required"`
	EnhancedQueries     []string `json:"enhanced_queries" validate:"required,min=1,max=3,dive,required"`
	IsAmbiguous         bool     `json:"is_ambiguous"`
	ClarificationNeeded string   `json:"clarification_needed"`
	Options             []string `json:"options"`
	Entities            Entities `json:"entities"`
}

// EnhanceQuery turns a raw claim into retrieval queries plus ambiguity
// metadata.
func (c *Client) EnhanceQuery(ctx context.Context, claim string) (*Enhancement, error) {
	content, err := c.complete(ctx, completionRequest{
		systemPrompt: enhancementSystemPrompt,
		userPrompt:   fmt.Sprintf("Claim: %s", claim),
	})
	if err != nil {
		return nil, err
	}

	var wire enhancementWire
	if err := json.Unmarshal([]byte(stripFences(content)), &wire); err != nil {
		c.logger.Warn("Failed to decode enhancement response", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEnhanceParse, err)
	}
	if err := c.validate.Struct(&wire); err != nil {
		c.logger.Warn("Enhancement response failed validation", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEnhanceParse, err)
	}

	return &Enhancement{
		ClarifiedClaim:      wire.ClarifiedClaim,
		Queries:             wire.EnhancedQueries,
		IsAmbiguous:         wire.IsAmbiguous,
		ClarificationNeeded: wire.ClarificationNeeded,
		Options:             wire.Options,
		Entities:            wire.Entities,
	}, nil
}

// GenerateEmbedding embeds a single text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		var err error
		embedding, err = retry.DoWithResult(ctx, c.retryConfig, func() ([]float32, error) {
			resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(c.embeddingModel),
				Input: []string{text},
			})
			if err != nil {
				return nil, err
			}
			if len(resp.Data) == 0 {
				return nil, fmt.Errorf("empty embedding response")
			}
			return resp.Data[0].Embedding, nil
		})
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}

	return embedding, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
