package engagement

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/STRATINT/echoloop/internal/models"
)

const (
	// DefaultRecentSample is how many recent posts feed the average.
	DefaultRecentSample = 10
	// DefaultTopSample is how many top posts feed the pattern statistics.
	DefaultTopSample = 5
)

// emojiRanges is the fixed set of code point ranges counted as emoji.
var emojiRanges = [][2]rune{
	{0x1F300, 0x1F5FF}, // symbols & pictographs
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F680, 0x1F6FF}, // transport & map
	{0x1F1E6, 0x1F1FF}, // regional indicators (flags)
	{0x1F900, 0x1F9FF}, // supplemental symbols
	{0x1FA70, 0x1FAFF}, // symbols & pictographs extended-A
	{0x2600, 0x26FF},   // misc symbols
	{0x2700, 0x27BF},   // dingbats
}

// ContainsEmoji reports whether text has at least one code point in emojiRanges.
func ContainsEmoji(text string) bool {
	for _, r := range text {
		for _, rng := range emojiRanges {
			if r >= rng[0] && r <= rng[1] {
				return true
			}
		}
	}
	return false
}

// ComputeInsight derives the advisory statistics from a recent-post sample and
// a top-performing sample. Replies are never metered, so they are dropped
// from both samples. Other posts without metrics count as zero engagement in
// the average.
func ComputeInsight(recent, top []models.PostWithMetrics) models.Insight {
	recent = originated(recent)
	top = originated(top)
	insight := models.Insight{RecentCount: len(recent)}

	if len(recent) > 0 {
		var total float64
		for _, p := range recent {
			total += Score(p.Latest)
		}
		insight.AverageEngagement = total / float64(len(recent))
	}

	ranked := make([]models.RankedPost, 0, len(top))
	for _, p := range top {
		ranked = append(ranked, models.RankedPost{PostWithMetrics: p, Score: Score(p.Latest)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	insight.TopPosts = ranked
	insight.Patterns = Patterns(top)

	return insight
}

func originated(posts []models.PostWithMetrics) []models.PostWithMetrics {
	out := make([]models.PostWithMetrics, 0, len(posts))
	for _, p := range posts {
		if p.Kind != models.PostKindReply {
			out = append(out, p)
		}
	}
	return out
}

// Patterns computes the content statistics over a set of posts.
func Patterns(posts []models.PostWithMetrics) models.ContentPatterns {
	p := models.ContentPatterns{SampleSize: len(posts)}
	if len(posts) == 0 {
		return p
	}

	var emoji, mentions, hashtags, questions, length int
	for _, post := range posts {
		text := post.Text
		if ContainsEmoji(text) {
			emoji++
		}
		if strings.Contains(text, "@") {
			mentions++
		}
		if strings.Contains(text, "#") {
			hashtags++
		}
		if strings.Contains(text, "?") {
			questions++
		}
		length += utf8.RuneCountInString(text)
	}

	n := float64(len(posts))
	p.EmojiPercent = percent(emoji, n)
	p.MentionPercent = percent(mentions, n)
	p.HashtagPercent = percent(hashtags, n)
	p.QuestionPercent = percent(questions, n)
	p.AverageLength = float64(length) / n
	return p
}

func percent(count int, total float64) float64 {
	return float64(count) / total * 100
}
