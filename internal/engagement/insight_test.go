package engagement

import (
	"math"
	"testing"

	"github.com/STRATINT/echoloop/internal/models"
)

func post(id, text string, likes, reshares, replies int) models.PostWithMetrics {
	return models.PostWithMetrics{
		Post:   models.Post{ID: id, Text: text, Kind: models.PostKindGenerated},
		Latest: &models.MetricSnapshot{PostID: id, Likes: likes, Reshares: reshares, Replies: replies},
	}
}

func TestComputeInsightAveragesRecentIncludingUnmetered(t *testing.T) {
	recent := []models.PostWithMetrics{
		post("1", "gm", 10, 0, 0),
		post("2", "wagmi", 0, 2, 0),
		{Post: models.Post{ID: "3", Text: "fresh post"}},
	}

	insight := ComputeInsight(recent, nil)

	if insight.RecentCount != 3 {
		t.Fatalf("expected 3 recent posts, got %d", insight.RecentCount)
	}
	want := (10.0 + 6.0 + 0.0) / 3.0
	if math.Abs(insight.AverageEngagement-want) > 1e-9 {
		t.Fatalf("AverageEngagement = %v, want %v", insight.AverageEngagement, want)
	}
	if insight.Patterns.SampleSize != 0 {
		t.Fatalf("expected empty pattern sample, got %d", insight.Patterns.SampleSize)
	}
}

func TestComputeInsightIgnoresReplies(t *testing.T) {
	recent := []models.PostWithMetrics{
		post("1", "gm", 10, 0, 0),
		post("2", "wagmi", 0, 2, 0),
	}
	withReplies := append([]models.PostWithMetrics{
		{Post: models.Post{ID: "r1", Text: "@alice thanks!", Kind: models.PostKindReply}},
		{Post: models.Post{ID: "r2", Text: "@bob agreed?", Kind: models.PostKindReply}},
	}, recent...)
	top := append([]models.PostWithMetrics{
		{Post: models.Post{ID: "r3", Text: "@carol #DPEP", Kind: models.PostKindReply}},
	}, recent...)

	base := ComputeInsight(recent, recent)
	mixed := ComputeInsight(withReplies, top)

	if mixed.RecentCount != 2 {
		t.Fatalf("expected replies excluded from recent count, got %d", mixed.RecentCount)
	}
	if math.Abs(mixed.AverageEngagement-base.AverageEngagement) > 1e-9 {
		t.Fatalf("AverageEngagement = %v with replies, want %v", mixed.AverageEngagement, base.AverageEngagement)
	}
	if len(mixed.TopPosts) != 2 || mixed.Patterns.MentionPercent != 0 {
		t.Fatalf("expected replies excluded from top sample, got %d posts, mention %v%%",
			len(mixed.TopPosts), mixed.Patterns.MentionPercent)
	}
}

func TestComputeInsightRanksTopPosts(t *testing.T) {
	top := []models.PostWithMetrics{
		post("low", "meh", 1, 0, 0),
		post("high", "big", 10, 10, 10),
		post("mid", "ok", 5, 1, 0),
	}

	insight := ComputeInsight(nil, top)

	order := []string{"high", "mid", "low"}
	for i, id := range order {
		if insight.TopPosts[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, insight.TopPosts[i].ID)
		}
	}
	if insight.AverageEngagement != 0 {
		t.Fatalf("expected zero average with no recent posts, got %v", insight.AverageEngagement)
	}
}

func TestPatterns(t *testing.T) {
	posts := []models.PostWithMetrics{
		post("1", "🚀 $PEPE is flying, who is in?", 1, 1, 1),
		post("2", "gm @frens #crypto", 1, 1, 1),
		post("3", "plain", 1, 1, 1),
		post("4", "🇺🇸 markets open", 1, 1, 1),
	}

	p := Patterns(posts)

	if p.SampleSize != 4 {
		t.Fatalf("SampleSize = %d, want 4", p.SampleSize)
	}
	checks := map[string][2]float64{
		"emoji":    {p.EmojiPercent, 50},
		"mention":  {p.MentionPercent, 25},
		"hashtag":  {p.HashtagPercent, 25},
		"question": {p.QuestionPercent, 25},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s percent = %v, want %v", name, c[0], c[1])
		}
	}

	var runes int
	for _, post := range posts {
		runes += len([]rune(post.Text))
	}
	if want := float64(runes) / 4; p.AverageLength != want {
		t.Errorf("AverageLength = %v, want %v", p.AverageLength, want)
	}
}

func TestContainsEmoji(t *testing.T) {
	tests := map[string]bool{
		"":                false,
		"plain ascii":     false,
		"accents éàü":     false,
		"rocket 🚀":        true,
		"sun ☀ symbol":    true,
		"check ✅":         true,
		"flag 🇯🇵":         true,
		"thinking 🤔 face": true,
	}
	for text, want := range tests {
		if got := ContainsEmoji(text); got != want {
			t.Errorf("ContainsEmoji(%q) = %v, want %v", text, got, want)
		}
	}
}
