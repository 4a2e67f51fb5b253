package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/STRATINT/echoloop/internal/apperrors"
	"github.com/STRATINT/echoloop/internal/engagement"
	"github.com/STRATINT/echoloop/internal/models"
)

// EngagementRepository is the PostgreSQL-backed engagement store: posts,
// their metric snapshots over time, and performance analyses.
type EngagementRepository struct {
	db *sql.DB
}

// NewEngagementRepository creates a new engagement repository.
func NewEngagementRepository(db *sql.DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// SavePost inserts a published post. A second insert of the same id fails
// with a duplicate StorageError.
func (r *EngagementRepository) SavePost(ctx context.Context, post models.Post) error {
	if !post.Kind.Valid() {
		return apperrors.Validation("kind", "unknown post kind %q", post.Kind)
	}

	query := `
		INSERT INTO posts (id, text, created_at, kind, template_used, context)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	var contextJSON interface{}
	if len(post.Context) > 0 {
		contextJSON = []byte(post.Context)
	}

	_, err := r.db.ExecContext(ctx, query,
		post.ID,
		post.Text,
		post.CreatedAt,
		string(post.Kind),
		nullString(post.TemplateUsed),
		contextJSON,
	)
	if err != nil {
		return storageError("save post", err)
	}
	return nil
}

// SaveMetricSnapshot appends a snapshot to the post's time series.
func (r *EngagementRepository) SaveMetricSnapshot(ctx context.Context, snapshot models.MetricSnapshot) error {
	query := `
		INSERT INTO metric_snapshots (post_id, collected_at, likes, reshares, replies, impressions)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.PostID,
		snapshot.CollectedAt,
		snapshot.Likes,
		snapshot.Reshares,
		snapshot.Replies,
		snapshot.Impressions,
	)
	if err != nil {
		return storageError("save metric snapshot", err)
	}
	return nil
}

// SaveAnalysis stores a performance analysis for a post.
func (r *EngagementRepository) SaveAnalysis(ctx context.Context, analysis models.Analysis) error {
	factors, err := json.Marshal(nonNil(analysis.SuccessFactors))
	if err != nil {
		return fmt.Errorf("failed to marshal success factors: %w", err)
	}
	areas, err := json.Marshal(nonNil(analysis.ImprovementAreas))
	if err != nil {
		return fmt.Errorf("failed to marshal improvement areas: %w", err)
	}

	query := `
		INSERT INTO analyses (post_id, created_at, assessment, success_factors, improvement_areas, recommended_approach)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		analysis.PostID,
		analysis.CreatedAt,
		analysis.Assessment,
		factors,
		areas,
		analysis.RecommendedApproach,
	)
	if err != nil {
		return storageError("save analysis", err)
	}
	return nil
}

// GetLatestMetrics returns the most recent snapshot for a post, or nil when
// the post has never been metered.
func (r *EngagementRepository) GetLatestMetrics(ctx context.Context, postID string) (*models.MetricSnapshot, error) {
	query := `
		SELECT id, post_id, collected_at, likes, reshares, replies, impressions
		FROM metric_snapshots
		WHERE post_id = $1
		ORDER BY collected_at DESC, id DESC
		LIMIT 1
	`

	var s models.MetricSnapshot
	err := r.db.QueryRowContext(ctx, query, postID).Scan(
		&s.ID,
		&s.PostID,
		&s.CollectedAt,
		&s.Likes,
		&s.Reshares,
		&s.Replies,
		&s.Impressions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get latest metrics", err)
	}
	return &s, nil
}

// latestSnapshotLateral selects the newest snapshot per post.
const latestSnapshotLateral = `
	SELECT s.id, s.collected_at, s.likes, s.reshares, s.replies, s.impressions
	FROM metric_snapshots s
	WHERE s.post_id = p.id
	ORDER BY s.collected_at DESC, s.id DESC
	LIMIT 1
`

// GetRecentPostsWithMetrics returns the newest posts, each joined with its
// latest snapshot. Posts without snapshots are included with a nil Latest.
func (r *EngagementRepository) GetRecentPostsWithMetrics(ctx context.Context, limit int) ([]models.PostWithMetrics, error) {
	return r.recentPosts(ctx, limit, "", "get recent posts")
}

// GetRecentOriginatedPostsWithMetrics is GetRecentPostsWithMetrics without
// replies. Replies are never metered and would read as zero engagement.
func (r *EngagementRepository) GetRecentOriginatedPostsWithMetrics(ctx context.Context, limit int) ([]models.PostWithMetrics, error) {
	return r.recentPosts(ctx, limit, "WHERE p.kind <> 'reply'", "get recent originated posts")
}

func (r *EngagementRepository) recentPosts(ctx context.Context, limit int, where, op string) ([]models.PostWithMetrics, error) {
	query := `
		SELECT p.id, p.text, p.created_at, p.kind, p.template_used, p.context,
		       m.id, m.collected_at, m.likes, m.reshares, m.replies, m.impressions
		FROM posts p
		LEFT JOIN LATERAL (` + latestSnapshotLateral + `) m ON TRUE
		` + where + `
		ORDER BY p.created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storageError(op, err)
	}
	defer rows.Close()

	return scanPostsWithMetrics(rows, op)
}

// GetTopPerformingPosts returns metered posts ordered by engagement score.
// Posts that have no snapshot are excluded, not ranked as zero.
func (r *EngagementRepository) GetTopPerformingPosts(ctx context.Context, limit int) ([]models.PostWithMetrics, error) {
	query := `
		SELECT p.id, p.text, p.created_at, p.kind, p.template_used, p.context,
		       m.id, m.collected_at, m.likes, m.reshares, m.replies, m.impressions
		FROM posts p
		JOIN LATERAL (` + latestSnapshotLateral + `) m ON TRUE
		ORDER BY ` + engagement.DefaultWeights.SQLExpression("m") + ` DESC, p.created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storageError("get top posts", err)
	}
	defer rows.Close()

	return scanPostsWithMetrics(rows, "get top posts")
}

// CountPosts returns the number of stored posts by kind.
func (r *EngagementRepository) CountPosts(ctx context.Context) (map[models.PostKind]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM posts GROUP BY kind`)
	if err != nil {
		return nil, storageError("count posts", err)
	}
	defer rows.Close()

	counts := make(map[models.PostKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, storageError("count posts", err)
		}
		counts[models.PostKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("count posts", err)
	}
	return counts, nil
}

func scanPostsWithMetrics(rows *sql.Rows, op string) ([]models.PostWithMetrics, error) {
	var posts []models.PostWithMetrics
	for rows.Next() {
		var (
			p            models.PostWithMetrics
			kind         string
			templateUsed sql.NullString
			contextJSON  []byte
			snapID       sql.NullInt64
			collectedAt  sql.NullTime
			likes        sql.NullInt64
			reshares     sql.NullInt64
			replies      sql.NullInt64
			impressions  sql.NullInt64
		)
		if err := rows.Scan(
			&p.ID,
			&p.Text,
			&p.CreatedAt,
			&kind,
			&templateUsed,
			&contextJSON,
			&snapID,
			&collectedAt,
			&likes,
			&reshares,
			&replies,
			&impressions,
		); err != nil {
			return nil, storageError(op, err)
		}

		p.Kind = models.PostKind(kind)
		p.TemplateUsed = templateUsed.String
		if len(contextJSON) > 0 {
			p.Context = json.RawMessage(contextJSON)
		}
		if snapID.Valid {
			p.Latest = &models.MetricSnapshot{
				ID:          snapID.Int64,
				PostID:      p.ID,
				CollectedAt: collectedAt.Time,
				Likes:       int(likes.Int64),
				Reshares:    int(reshares.Int64),
				Replies:     int(replies.Int64),
				Impressions: int(impressions.Int64),
			}
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(op, err)
	}
	return posts, nil
}

func storageError(op string, err error) error {
	return &apperrors.StorageError{Op: op, Duplicate: isUniqueViolation(err), Err: err}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
