package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// SummaryRepo persists per-article summaries. The table carries no unique
// constraint on (article_id, model, lang), so idempotent replacement is
// modelled as delete-then-insert inside one transaction.
type SummaryRepo struct{ Pool PgxPool }

// NewSummaryRepo constructs a SummaryRepo with the given pool.
func NewSummaryRepo(p PgxPool) *SummaryRepo { return &SummaryRepo{Pool: p} }

// Replace deletes any summary for the triple and inserts the new one.
func (r *SummaryRepo) Replace(ctx context.Context, s domain.Summary) error {
	tracer := otel.Tracer("repo.summaries")
	ctx, span := tracer.Start(ctx, "summaries.Replace")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=summary.replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM summary WHERE article_id = $1 AND model = $2 AND lang = $3`,
		s.ArticleID, s.Model, s.Lang); err != nil {
		return fmt.Errorf("op=summary.replace: delete: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO summary (article_id, model, lang, summary) VALUES ($1,$2,$3,$4)`,
		s.ArticleID, s.Model, s.Lang, s.Summary); err != nil {
		return fmt.Errorf("op=summary.replace: insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=summary.replace: %w", err)
	}
	return nil
}
