// Package generation turns gathered context into post text and post
// analyses through a text-generation API.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/models"
)

// MaxPostLength is the platform limit in characters (runes).
const MaxPostLength = 280

const (
	textMaxTokens     = 200
	analysisMaxTokens = 600
)

// Gateway renders prompts, calls the generator and validates its output.
type Gateway struct {
	gen    TextGenerator
	logger *slog.Logger
	now    func() time.Time
}

// NewGateway creates a generation gateway.
func NewGateway(gen TextGenerator, logger *slog.Logger) *Gateway {
	return &Gateway{gen: gen, logger: logger, now: time.Now}
}

// Generate returns post-ready text for a post, reply or trend-summary prompt.
// Output longer than MaxPostLength is rejected, never truncated.
func (g *Gateway) Generate(ctx context.Context, p Prompt) (string, error) {
	if _, ok := p.(AnalysisPrompt); ok {
		return "", apperrors.Validation("prompt", "analysis prompts produce structured output, use Analyze")
	}

	system, user, err := render(p)
	if err != nil {
		return "", err
	}

	raw, err := g.gen.GenerateText(ctx, Request{
		Operation: p.Template(),
		System:    system,
		User:      user,
		MaxTokens: textMaxTokens,
	})
	if err != nil {
		return "", err
	}

	text := cleanText(raw)
	if err := ValidateText(text); err != nil {
		g.logger.Warn("generated text rejected",
			"template", p.Template(),
			"length", utf8.RuneCountInString(text),
			"error", err)
		return "", err
	}
	return text, nil
}

// Analyze asks the generator for a structured assessment of a post.
func (g *Gateway) Analyze(ctx context.Context, p AnalysisPrompt) (models.Analysis, error) {
	system, user, err := render(p)
	if err != nil {
		return models.Analysis{}, err
	}

	raw, err := g.gen.GenerateText(ctx, Request{
		Operation: p.Template(),
		System:    system,
		User:      user,
		MaxTokens: analysisMaxTokens,
		JSON:      true,
	})
	if err != nil {
		return models.Analysis{}, err
	}

	var parsed struct {
		Assessment          string   `json:"assessment"`
		SuccessFactors      []string `json:"success_factors"`
		ImprovementAreas    []string `json:"improvement_areas"`
		RecommendedApproach string   `json:"recommended_approach"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return models.Analysis{}, apperrors.Validation("analysis", "response is not valid JSON: %v", err)
	}
	if strings.TrimSpace(parsed.Assessment) == "" {
		return models.Analysis{}, apperrors.Validation("analysis", "response has no assessment")
	}

	return models.Analysis{
		PostID:              p.Post.ID,
		CreatedAt:           g.now(),
		Assessment:          strings.TrimSpace(parsed.Assessment),
		SuccessFactors:      parsed.SuccessFactors,
		ImprovementAreas:    parsed.ImprovementAreas,
		RecommendedApproach: strings.TrimSpace(parsed.RecommendedApproach),
	}, nil
}

// CheckCredentials verifies the generator accepts its credentials.
func (g *Gateway) CheckCredentials(ctx context.Context) error {
	if err := g.gen.CheckCredentials(ctx); err != nil {
		return fmt.Errorf("generation credential check failed: %w", err)
	}
	return nil
}

// ValidateText rejects empty text and text over the platform limit.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.Validation("text", "empty post text")
	}
	if n := utf8.RuneCountInString(text); n > MaxPostLength {
		return apperrors.Validation("text", "post is %d characters, limit is %d", n, MaxPostLength)
	}
	return nil
}

// cleanText strips whitespace and a single pair of wrapping quotes.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			inner := s[len(q[0]) : len(s)-len(q[1])]
			if !strings.ContainsAny(inner, q[0]+q[1]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
