package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// StoryRepo covers the story-side lookups and mutations the dispatcher needs:
// reading url/title, linking articles, tagging, and ranking refreshes.
type StoryRepo struct{ Pool PgxPool }

// NewStoryRepo constructs a StoryRepo with the given pool.
func NewStoryRepo(p PgxPool) *StoryRepo { return &StoryRepo{Pool: p} }

// GetURLTitle returns (url, title) for a story; either may be null.
func (r *StoryRepo) GetURLTitle(ctx context.Context, storyID string) (*string, *string, error) {
	tracer := otel.Tracer("repo.stories")
	ctx, span := tracer.Start(ctx, "stories.GetURLTitle")
	defer span.End()
	var url, title *string
	err := r.Pool.QueryRow(ctx, `SELECT url, title FROM story WHERE id = $1`, storyID).Scan(&url, &title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("op=story.get: %w", domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("op=story.get: %w", err)
	}
	return url, title, nil
}

// LinkArticle points the story at an article row.
func (r *StoryRepo) LinkArticle(ctx context.Context, storyID, articleID string) error {
	tracer := otel.Tracer("repo.stories")
	ctx, span := tracer.Start(ctx, "stories.LinkArticle")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `UPDATE story SET article_id = $1 WHERE id = $2`, articleID, storyID); err != nil {
		return fmt.Errorf("op=story.link_article: %w", err)
	}
	return nil
}

// GetOrCreateTag returns the tag id for a slug, creating the tag on first use.
// The name defaults to the title-cased slug and kind defaults to "tech".
func (r *StoryRepo) GetOrCreateTag(ctx context.Context, slug, name, kind string) (string, error) {
	tracer := otel.Tracer("repo.stories")
	ctx, span := tracer.Start(ctx, "stories.GetOrCreateTag")
	defer span.End()

	if name == "" {
		name = titleCase(slug)
	}
	if kind == "" {
		kind = "tech"
	}
	var id string
	err := r.Pool.QueryRow(ctx, `SELECT id FROM tag WHERE slug = $1`, slug).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("op=tag.get: %w", err)
	}
	err = r.Pool.QueryRow(ctx, `INSERT INTO tag (slug, name, kind) VALUES ($1,$2,$3) RETURNING id`, slug, name, kind).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("op=tag.create: %w", err)
	}
	return id, nil
}

// AttachTagToStory links a tag to a story; duplicates are ignored.
func (r *StoryRepo) AttachTagToStory(ctx context.Context, storyID, tagID string) error {
	tracer := otel.Tracer("repo.stories")
	ctx, span := tracer.Start(ctx, "stories.AttachTagToStory")
	defer span.End()
	q := `INSERT INTO story_tag (story_id, tag_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	if _, err := r.Pool.Exec(ctx, q, storyID, tagID); err != nil {
		return fmt.Errorf("op=tag.attach: %w", err)
	}
	return nil
}

// RefreshRecentHotScores recomputes hot scores for stories created within the
// window and returns how many rows were touched. The score formula lives in
// the compute_hot_score SQL function.
func (r *StoryRepo) RefreshRecentHotScores(ctx context.Context, hours int) (int, error) {
	tracer := otel.Tracer("repo.stories")
	ctx, span := tracer.Start(ctx, "stories.RefreshRecentHotScores")
	defer span.End()

	q := `INSERT INTO rank_signals (story_id, hot_score, decay_ts, click_count, dwell_ms_avg, updated_at)
	SELECT s.id,
	       compute_hot_score(COALESCE(s.points,0), COALESCE(s.comments_count,0), EXTRACT(EPOCH FROM (now() - s.created_at))/3600.0),
	       now(), rs.click_count, rs.dwell_ms_avg, now()
	FROM story s LEFT JOIN rank_signals rs ON rs.story_id = s.id
	WHERE s.created_at >= now() - ($1 || ' hours')::interval
	ON CONFLICT (story_id) DO UPDATE SET hot_score = EXCLUDED.hot_score, decay_ts = EXCLUDED.decay_ts, updated_at = now()
	RETURNING story_id`
	rows, err := r.Pool.Query(ctx, q, hours)
	if err != nil {
		return 0, fmt.Errorf("op=rank.refresh: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("op=rank.refresh: %w", err)
	}
	return n, nil
}

func titleCase(slug string) string {
	parts := strings.Split(slug, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
