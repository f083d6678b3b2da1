package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const analysisPrompt = `Analyze the following news article:
Title: %s
Content: %s

Provide the output in valid JSON format with the following keys:
- "summary_bullets": [array of 3-5 strings, bullet points, 15-25 words each]
- "category": one of: %s
- "impact_score": integer 1-10
- "why_it_matters": "string explaining impact"
- "who_is_affected": "stakeholders affected"
- "short_term_impact": "immediate consequences"
- "long_term_impact": "broader effects"
- "sentiment": "Positive/Negative/Neutral"

Rules:
1. Never claim absolute accuracy.
2. Do not invent facts. If information is missing, state "Data not provided".
3. If information is uncertain or evolving, say "Evolving" or "Uncertain" in the impacts.`

const defaultImpact = 5

// OpenAIAnalyzer implements ports.Analyzer with an OpenAI-compatible chat completion API.
type OpenAIAnalyzer struct {
	client       openai.Client
	model        string
	systemPrompt string
	maxContent   int
}

var _ ports.Analyzer = (*OpenAIAnalyzer)(nil)

// NewOpenAIAnalyzer builds an analyzer from configuration.
func NewOpenAIAnalyzer(cfg config.AnalysisConfig) *OpenAIAnalyzer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIAnalyzer{
		client:       openai.NewClient(opts...),
		model:        model,
		systemPrompt: safePrompt(cfg.SystemPrompt),
		maxContent:   cfg.MaxContentRunes,
	}
}

// Analyze asks the model for a structured analysis of one article.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, title, body string) (domain.Analysis, error) {
	prompt := fmt.Sprintf(analysisPrompt, title, truncateRunes(body, a.maxContent), strings.Join(domain.Categories, ", "))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(a.systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		if IsQuotaExceeded(err) {
			return domain.Analysis{}, fmt.Errorf("openai analysis: %w: %w", ports.ErrAnalysisQuota, err)
		}
		return domain.Analysis{}, fmt.Errorf("openai analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Analysis{}, errors.New("openai analysis returned no choices")
	}

	return ParseAnalysis(resp.Choices[0].Message.Content)
}

// ParseAnalysis decodes a model reply, tolerating markdown code fences around the JSON.
func ParseAnalysis(raw string) (domain.Analysis, error) {
	content := stripCodeFence(raw)
	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return domain.Analysis{}, fmt.Errorf("parse analysis: %w", err)
	}

	analysis.Category = strings.TrimSpace(analysis.Category)
	switch {
	case analysis.ImpactScore <= 0:
		analysis.ImpactScore = defaultImpact
	case analysis.ImpactScore > 10:
		analysis.ImpactScore = 10
	}
	if analysis.Sentiment == "" {
		analysis.Sentiment = "Neutral"
	}
	if analysis.BiasRating == "" {
		analysis.BiasRating = "Neutral"
	}
	return analysis, nil
}

// IsQuotaExceeded reports whether err is the provider's out-of-quota error.
func IsQuotaExceeded(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.Code == "insufficient_quota"
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are an expert news analyst. Output ONLY JSON."
	}
	return prompt
}
