package models

// TweetContext is the signal bundle gathered before generating a scheduled post.
type TweetContext struct {
	TrendingCoins []TrendingCoin `json:"trending_coins"`
	MarketEvents  []MarketMove   `json:"market_events"`
	PeerActivity  []PeerPost     `json:"peer_activity"`
}

// Empty reports whether every source came back empty.
func (c TweetContext) Empty() bool {
	return len(c.TrendingCoins) == 0 && len(c.MarketEvents) == 0 && len(c.PeerActivity) == 0
}

// ReplyContext is the signal bundle used to answer a mention.
type ReplyContext struct {
	Mention       Mention        `json:"mention"`
	Symbols       []string       `json:"symbols"`
	TrendingCoins []TrendingCoin `json:"trending_coins"`
	PeerSnippets  []string       `json:"peer_snippets"`
}

// MarketCondition is a coarse label derived from trending activity.
type MarketCondition string

const (
	MarketHeated MarketCondition = "heated"
	MarketCalm   MarketCondition = "calm"
)

// TrendSummaryContext feeds the trend-summary template.
type TrendSummaryContext struct {
	Condition     MarketCondition `json:"condition"`
	TrendingCount int             `json:"trending_count"`
	TrendingCoins []TrendingCoin  `json:"trending_coins"`
	MarketEvents  []MarketMove    `json:"market_events"`
}
