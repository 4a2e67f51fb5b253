package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/STRATINT/echoloop/internal/models"
)

// Template names, also recorded as Post.TemplateUsed and in the generation log.
const (
	TemplatePost         = "post"
	TemplateReply        = "reply"
	TemplateTrendSummary = "trend_summary"
	TemplateAnalysis     = "analysis"
)

// Prompt is one of PostPrompt, ReplyPrompt, TrendSummaryPrompt or
// AnalysisPrompt. The set is closed.
type Prompt interface {
	Template() string
	prompt()
}

// PostPrompt asks for a scheduled post built from the gathered context.
type PostPrompt struct {
	Context models.TweetContext
	Insight *models.Insight
}

// ReplyPrompt asks for a reply to one mention.
type ReplyPrompt struct {
	Context models.ReplyContext
}

// TrendSummaryPrompt asks for a one-post summary of the market mood.
type TrendSummaryPrompt struct {
	Context models.TrendSummaryContext
}

// AnalysisPrompt asks for a structured assessment of a published post.
type AnalysisPrompt struct {
	Post    models.Post
	Metrics models.MetricSnapshot
}

func (PostPrompt) Template() string         { return TemplatePost }
func (ReplyPrompt) Template() string        { return TemplateReply }
func (TrendSummaryPrompt) Template() string { return TemplateTrendSummary }
func (AnalysisPrompt) Template() string     { return TemplateAnalysis }

func (PostPrompt) prompt()         {}
func (ReplyPrompt) prompt()        {}
func (TrendSummaryPrompt) prompt() {}
func (AnalysisPrompt) prompt()     {}

const postSystemPrompt = `You write short posts for a crypto market commentary account.
Rules:
- At most 280 characters, including spaces, tickers and emoji.
- One post only. No surrounding quotes, no preamble, no thread numbering.
- Mention coins by ticker with a $ prefix, e.g. $BTC.
- Be specific about what moved; do not invent prices or numbers not given to you.
- No financial advice, no promises of returns.`

const replySystemPrompt = `You reply to people who mention a crypto market commentary account.
Rules:
- At most 280 characters.
- Answer the person directly and stay on the topic they raised.
- Only reference coins and numbers given to you. If you do not know, say so briefly.
- Friendly, concise, no financial advice, no surrounding quotes.`

const analysisSystemPrompt = `You analyse the performance of social media posts.
Respond with ONLY a JSON object of this exact shape:
{
  "assessment": "one or two sentences on how the post performed",
  "success_factors": ["short phrase", "..."],
  "improvement_areas": ["short phrase", "..."],
  "recommended_approach": "one sentence on what to do differently next time"
}`

// render builds the system and user messages for p.
func render(p Prompt) (system, user string, err error) {
	switch p := p.(type) {
	case PostPrompt:
		return postSystemPrompt, renderPost(p), nil
	case ReplyPrompt:
		return replySystemPrompt, renderReply(p), nil
	case TrendSummaryPrompt:
		return postSystemPrompt, renderTrendSummary(p), nil
	case AnalysisPrompt:
		u, err := renderAnalysis(p)
		return analysisSystemPrompt, u, err
	default:
		return "", "", fmt.Errorf("unsupported prompt type %T", p)
	}
}

func renderPost(p PostPrompt) string {
	var b strings.Builder
	b.WriteString("Write one post about what is happening in the crypto market right now.\n")

	writeTrending(&b, p.Context.TrendingCoins)
	writeMoves(&b, p.Context.MarketEvents)

	if len(p.Context.PeerActivity) > 0 {
		b.WriteString("\nWhat other accounts are posting (for tone, do not copy):\n")
		for _, peer := range p.Context.PeerActivity {
			fmt.Fprintf(&b, "- @%s: %s\n", peer.Handle, oneLine(peer.Text))
		}
	}

	if p.Context.Empty() {
		b.WriteString("\nNo fresh market data is available. Write a general, timeless observation about crypto markets.\n")
	}

	if in := p.Insight; in != nil && len(in.TopPosts) > 0 {
		b.WriteString("\nOur best performing recent posts:\n")
		for _, top := range in.TopPosts {
			fmt.Fprintf(&b, "- (score %.0f) %s\n", top.Score, oneLine(top.Text))
		}
		pt := in.Patterns
		fmt.Fprintf(&b, "Among them: %.0f%% use emoji, %.0f%% mention accounts, %.0f%% use hashtags, %.0f%% ask a question, average length %.0f characters.\n",
			pt.EmojiPercent, pt.MentionPercent, pt.HashtagPercent, pt.QuestionPercent, pt.AverageLength)
	}

	return b.String()
}

func renderReply(p ReplyPrompt) string {
	var b strings.Builder
	m := p.Context.Mention
	handle := m.AuthorHandle
	if handle == "" {
		handle = "someone"
	}
	fmt.Fprintf(&b, "@%s wrote to us:\n%q\n", handle, m.Text)

	if len(p.Context.Symbols) > 0 {
		fmt.Fprintf(&b, "\nThey asked about: %s\n", strings.Join(p.Context.Symbols, ", "))
	}
	writeTrending(&b, p.Context.TrendingCoins)
	if len(p.Context.PeerSnippets) > 0 {
		b.WriteString("\nRecent posts from accounts we follow:\n")
		for _, s := range p.Context.PeerSnippets {
			fmt.Fprintf(&b, "- %s\n", oneLine(s))
		}
	}

	b.WriteString("\nWrite the reply text only, without the leading @handle.\n")
	return b.String()
}

func renderTrendSummary(p TrendSummaryPrompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write one post summarising the market mood. The market is %s: %d coins are trending.\n",
		p.Context.Condition, p.Context.TrendingCount)
	writeTrending(&b, p.Context.TrendingCoins)
	writeMoves(&b, p.Context.MarketEvents)
	return b.String()
}

func renderAnalysis(p AnalysisPrompt) (string, error) {
	payload := struct {
		Text        string          `json:"text"`
		Kind        models.PostKind `json:"kind"`
		PostedAt    string          `json:"posted_at"`
		Likes       int             `json:"likes"`
		Reshares    int             `json:"reshares"`
		Replies     int             `json:"replies"`
		Impressions int             `json:"impressions"`
		Context     json.RawMessage `json:"generation_context,omitempty"`
	}{
		Text:        p.Post.Text,
		Kind:        p.Post.Kind,
		PostedAt:    p.Post.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
		Likes:       p.Metrics.Likes,
		Reshares:    p.Metrics.Reshares,
		Replies:     p.Metrics.Replies,
		Impressions: p.Metrics.Impressions,
		Context:     p.Post.Context,
	}
	if len(payload.Context) > 0 && !json.Valid(payload.Context) {
		payload.Context = nil
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal analysis input: %w", err)
	}
	return "Analyse this post and its engagement:\n" + string(data), nil
}

func writeTrending(b *strings.Builder, coins []models.TrendingCoin) {
	if len(coins) == 0 {
		return
	}
	b.WriteString("\nTrending coins:\n")
	for _, c := range coins {
		fmt.Fprintf(b, "- %s\n", c.Label())
	}
}

func writeMoves(b *strings.Builder, moves []models.MarketMove) {
	if len(moves) == 0 {
		return
	}
	b.WriteString("\nBiggest 24h moves:\n")
	for _, m := range moves {
		fmt.Fprintf(b, "- %s\n", m.Summary())
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
