package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/logging"
	"github.com/STRATINT/echoloop/internal/models"
)

type fakeGenerator struct {
	output   string
	err      error
	credsErr error
	requests []Request
}

func (f *fakeGenerator) GenerateText(_ context.Context, req Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.output, f.err
}

func (f *fakeGenerator) CheckCredentials(context.Context) error {
	return f.credsErr
}

func TestGenerateReturnsCleanedText(t *testing.T) {
	gen := &fakeGenerator{output: "  \"$DPEP is up 40% today 🚀\"\n"}
	gw := NewGateway(gen, logging.Discard())

	text, err := gw.Generate(context.Background(), PostPrompt{
		Context: models.TweetContext{TrendingCoins: []models.TrendingCoin{{Name: "DOGEPEPE", Symbol: "DPEP", Rank: 1}}},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != "$DPEP is up 40% today 🚀" {
		t.Errorf("unexpected text %q", text)
	}
	if len(gen.requests) != 1 || gen.requests[0].Operation != TemplatePost || gen.requests[0].JSON {
		t.Fatalf("unexpected request %+v", gen.requests)
	}
	if !strings.Contains(gen.requests[0].User, "DOGEPEPE (DPEP)") {
		t.Errorf("expected trending label in prompt, got %q", gen.requests[0].User)
	}
}

func TestGenerateRejectsOverLimitWithoutTruncating(t *testing.T) {
	gen := &fakeGenerator{output: strings.Repeat("a", MaxPostLength+1)}
	gw := NewGateway(gen, logging.Discard())

	text, err := gw.Generate(context.Background(), PostPrompt{})
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if text != "" {
		t.Errorf("expected no text on rejection, got %d chars", len(text))
	}
}

func TestGenerateCountsRunesNotBytes(t *testing.T) {
	gen := &fakeGenerator{output: strings.Repeat("🚀", MaxPostLength)}
	gw := NewGateway(gen, logging.Discard())

	if _, err := gw.Generate(context.Background(), TrendSummaryPrompt{}); err != nil {
		t.Fatalf("280 emoji should be within the limit, got %v", err)
	}
}

func TestGenerateEmptyOutputIsValidationError(t *testing.T) {
	gw := NewGateway(&fakeGenerator{output: "  \n"}, logging.Discard())
	if _, err := gw.Generate(context.Background(), ReplyPrompt{}); !apperrors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestGeneratePropagatesTransportError(t *testing.T) {
	upstream := apperrors.Transport("openai", "post", 503, errors.New("unavailable"))
	gw := NewGateway(&fakeGenerator{err: upstream}, logging.Discard())

	_, err := gw.Generate(context.Background(), PostPrompt{})
	if !apperrors.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestGenerateRejectsAnalysisPrompt(t *testing.T) {
	gen := &fakeGenerator{output: "x"}
	gw := NewGateway(gen, logging.Discard())

	if _, err := gw.Generate(context.Background(), AnalysisPrompt{}); !apperrors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(gen.requests) != 0 {
		t.Error("generator must not be called")
	}
}

func TestAnalyzeParsesJSON(t *testing.T) {
	gen := &fakeGenerator{output: "```json\n{\"assessment\":\"Strong hook\",\"success_factors\":[\"emoji\",\"ticker\"],\"improvement_areas\":[\"timing\"],\"recommended_approach\":\"Post during US hours\"}\n```"}
	gw := NewGateway(gen, logging.Discard())
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	gw.now = func() time.Time { return fixed }

	analysis, err := gw.Analyze(context.Background(), AnalysisPrompt{
		Post:    models.Post{ID: "99", Text: "gm", Kind: models.PostKindGenerated},
		Metrics: models.MetricSnapshot{Likes: 4},
	})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if analysis.PostID != "99" || !analysis.CreatedAt.Equal(fixed) {
		t.Errorf("unexpected analysis header %+v", analysis)
	}
	if analysis.Assessment != "Strong hook" || len(analysis.SuccessFactors) != 2 || analysis.RecommendedApproach != "Post during US hours" {
		t.Errorf("unexpected analysis %+v", analysis)
	}
	if !gen.requests[0].JSON || gen.requests[0].Operation != TemplateAnalysis {
		t.Errorf("expected JSON analysis request, got %+v", gen.requests[0])
	}
	if !strings.Contains(gen.requests[0].User, `"likes": 4`) {
		t.Errorf("expected metrics in analysis prompt, got %q", gen.requests[0].User)
	}
}

func TestAnalyzeRejectsMalformedJSON(t *testing.T) {
	gw := NewGateway(&fakeGenerator{output: "looks good to me"}, logging.Discard())
	if _, err := gw.Analyze(context.Background(), AnalysisPrompt{}); !apperrors.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCheckCredentialsWrapsSentinel(t *testing.T) {
	gw := NewGateway(&fakeGenerator{credsErr: ErrInvalidCredentials}, logging.Discard())
	if err := gw.CheckCredentials(context.Background()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCleanText(t *testing.T) {
	tests := map[string]string{
		`"quoted"`:        "quoted",
		"“curly”":         "curly",
		`he said "hi" ok`: `he said "hi" ok`,
		`"a" and "b"`:     `"a" and "b"`,
		"  plain text \n": "plain text",
		`"`:               `"`,
	}
	for in, want := range tests {
		if got := cleanText(in); got != want {
			t.Errorf("cleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderReplyIncludesMentionAndSymbols(t *testing.T) {
	_, user, err := render(ReplyPrompt{Context: models.ReplyContext{
		Mention: models.Mention{Text: "thoughts on $DPEP?", AuthorHandle: "alice"},
		Symbols: []string{"DPEP"},
	}})
	if err != nil {
		t.Fatalf("render returned error: %v", err)
	}
	if !strings.Contains(user, "@alice") || !strings.Contains(user, "They asked about: DPEP") {
		t.Errorf("unexpected reply prompt %q", user)
	}
}

func TestRenderPostIncludesInsight(t *testing.T) {
	insight := &models.Insight{
		TopPosts: []models.RankedPost{{PostWithMetrics: models.PostWithMetrics{Post: models.Post{Text: "best one"}}, Score: 42}},
		Patterns: models.ContentPatterns{EmojiPercent: 60},
	}
	_, user, err := render(PostPrompt{Insight: insight})
	if err != nil {
		t.Fatalf("render returned error: %v", err)
	}
	if !strings.Contains(user, "(score 42) best one") || !strings.Contains(user, "60% use emoji") {
		t.Errorf("expected insight in post prompt, got %q", user)
	}
	if !strings.Contains(user, "No fresh market data") {
		t.Errorf("expected empty-context hint, got %q", user)
	}
}
