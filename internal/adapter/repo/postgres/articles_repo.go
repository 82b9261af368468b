package postgres

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// ArticleRepo persists articles and their link to stories.
type ArticleRepo struct{ Pool PgxPool }

// NewArticleRepo constructs an ArticleRepo with the given pool.
func NewArticleRepo(p PgxPool) *ArticleRepo { return &ArticleRepo{Pool: p} }

// UpsertAndLink runs the scraper's single write transaction: insert the
// article keyed on content_hash (reading the existing row's id on conflict)
// and point the story at it, filling domain and author only when null.
// Any failure aborts the whole transaction and surfaces as retryable.
func (r *ArticleRepo) UpsertAndLink(ctx context.Context, a domain.Article, storyID string, domainName, author *string) (string, error) {
	tracer := otel.Tracer("repo.articles")
	ctx, span := tracer.Start(ctx, "articles.UpsertAndLink")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("op=article.upsert_link: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := upsertArticleTx(ctx, tx, a)
	if err != nil {
		return "", err
	}
	if err := linkStoryTx(ctx, tx, storyID, id, domainName, author); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("op=article.upsert_link: %w", err)
	}
	return id, nil
}

func upsertArticleTx(ctx context.Context, tx pgx.Tx, a domain.Article) (string, error) {
	q := `INSERT INTO article (language, html, text, word_count, content_hash)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (content_hash) DO NOTHING
	RETURNING id`
	var id string
	err := tx.QueryRow(ctx, q, a.Language, a.HTML, a.Text, a.WordCount, a.ContentHash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("op=article.upsert: %w", err)
	}
	// Conflict path: another extraction already produced this content.
	err = tx.QueryRow(ctx, `SELECT id FROM article WHERE content_hash = $1`, a.ContentHash).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("op=article.upsert: existing row lookup: %w", err)
	}
	return id, nil
}

func linkStoryTx(ctx context.Context, tx pgx.Tx, storyID, articleID string, domainName, author *string) error {
	q := `UPDATE story SET article_id = $1, domain = COALESCE(domain, $2), author = COALESCE(author, $3) WHERE id = $4`
	if _, err := tx.Exec(ctx, q, articleID, domainName, author, storyID); err != nil {
		return fmt.Errorf("op=story.link: %w", err)
	}
	return nil
}

// UpsertFromText is the dispatcher's coarse article upsert: whitespace is
// normalised and the SHA-1 of the normalised text is the conflict key.
func (r *ArticleRepo) UpsertFromText(ctx context.Context, text, language string, html *string) (string, error) {
	tracer := otel.Tracer("repo.articles")
	ctx, span := tracer.Start(ctx, "articles.UpsertFromText")
	defer span.End()

	norm := strings.Join(strings.Fields(text), " ")
	sum := sha1.Sum([]byte(norm))
	hash := hex.EncodeToString(sum[:])
	words := len(strings.Fields(norm))

	q := `INSERT INTO article (language, html, text, word_count, content_hash)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (content_hash) DO UPDATE SET language = EXCLUDED.language
	RETURNING id`
	var id string
	if err := r.Pool.QueryRow(ctx, q, language, html, norm, words, hash).Scan(&id); err != nil {
		return "", fmt.Errorf("op=article.upsert_text: %w", err)
	}
	return id, nil
}

// GetText loads (text, language) for an article.
func (r *ArticleRepo) GetText(ctx context.Context, articleID string) (string, string, error) {
	tracer := otel.Tracer("repo.articles")
	ctx, span := tracer.Start(ctx, "articles.GetText")
	defer span.End()
	var text, lang string
	err := r.Pool.QueryRow(ctx, `SELECT text, language FROM article WHERE id = $1`, articleID).Scan(&text, &lang)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", fmt.Errorf("op=article.get_text: %w", domain.ErrNotFound)
		}
		return "", "", fmt.Errorf("op=article.get_text: %w", err)
	}
	return text, lang, nil
}

var _ domain.ArticleStore = (*ArticleRepo)(nil)
