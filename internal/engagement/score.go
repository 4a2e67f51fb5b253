// Package engagement holds the canonical engagement-score weighting and the
// advisory insight computation built on top of it.
package engagement

import (
	"fmt"

	"github.com/STRATINT/echoloop/internal/models"
)

// Weights is the weighting applied to each engagement count.
type Weights struct {
	Likes    float64
	Reshares float64
	Replies  float64
}

// DefaultWeights is the single weight set used everywhere a score is computed,
// in Go and in SQL.
var DefaultWeights = Weights{Likes: 1, Reshares: 3, Replies: 2}

// Score computes the weighted engagement of a snapshot. A nil snapshot scores zero.
func Score(s *models.MetricSnapshot) float64 {
	if s == nil {
		return 0
	}
	return DefaultWeights.Apply(s.Likes, s.Reshares, s.Replies)
}

// Apply computes likes·w_l + reshares·w_r + replies·w_c. Negative counts are
// clamped to zero so the score stays monotonic.
func (w Weights) Apply(likes, reshares, replies int) float64 {
	return w.Likes*float64(max(likes, 0)) +
		w.Reshares*float64(max(reshares, 0)) +
		w.Replies*float64(max(replies, 0))
}

// SQLExpression renders the weighting over the given table alias so ranking
// queries order by exactly the same formula.
func (w Weights) SQLExpression(alias string) string {
	return fmt.Sprintf("(%[1]s.likes * %[2]g + %[1]s.reshares * %[3]g + %[1]s.replies * %[4]g)",
		alias, w.Likes, w.Reshares, w.Replies)
}
