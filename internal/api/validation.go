package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/STRATINT/echoloop/internal/apperrors"
)

const maxListLimit = 100

// parseLimit reads the "limit" query parameter, falling back to def and
// capping at maxListLimit.
func parseLimit(q url.Values, def int) (int, error) {
	raw := q.Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.Validation("limit", "must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// parseSince accepts an RFC3339 timestamp or a Go duration ("24h") counted
// back from now. An empty value yields the zero time.
func parseSince(q url.Values, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(q.Get("since"))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, apperrors.Validation("since", "must be an RFC3339 timestamp or a positive duration")
}

// ManualPostRequest is the body of POST /api/admin/posts.
type ManualPostRequest struct {
	Text string `json:"text"`
}

func (r ManualPostRequest) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return apperrors.Validation("text", "is required")
	}
	return nil
}
