// -----------------------------------------------------------------------
// ClaudeAnalyzer - Credibility analysis via the Anthropic API
// -----------------------------------------------------------------------

package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
)

// Analyzer turns collected evidence into an analysis text. Kept behind an
// interface so research runs can be tested without network access.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

// ClaudeAnalyzer implements Analyzer using Anthropic Claude
type ClaudeAnalyzer struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	maxTokens int
}

// NewClaudeAnalyzer creates a Claude-backed analyzer
func NewClaudeAnalyzer(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeAnalyzer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set via ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	model := config.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
		config.Model = model
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	logger.Debug().
		Str("model", model).
		Int("max_tokens", maxTokens).
		Msg("Claude analyzer initialized")

	return &ClaudeAnalyzer{
		config:    config,
		logger:    logger,
		client:    client,
		maxTokens: maxTokens,
	}, nil
}

// Analyze sends the prompt to Claude and returns the text response
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: int64(a.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: "You are an equity research analyst. Assess how credible a company's association with a market concept is, based only on the evidence provided. Be specific and cite the evidence items you rely on."},
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	return response.String(), nil
}
