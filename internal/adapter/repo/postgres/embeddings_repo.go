package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
)

// EmbeddingRepo persists pgvector embeddings keyed by (article_id, model_key).
type EmbeddingRepo struct{ Pool PgxPool }

// NewEmbeddingRepo constructs an EmbeddingRepo with the given pool.
func NewEmbeddingRepo(p PgxPool) *EmbeddingRepo { return &EmbeddingRepo{Pool: p} }

// Dims looks up the expected vector dimensionality for a model key.
func (r *EmbeddingRepo) Dims(ctx context.Context, modelKey string) (int, error) {
	tracer := otel.Tracer("repo.embeddings")
	ctx, span := tracer.Start(ctx, "embeddings.Dims")
	defer span.End()
	var dims int
	err := r.Pool.QueryRow(ctx, `SELECT dimensions FROM embedding_model WHERE key = $1`, modelKey).Scan(&dims)
	if err != nil {
		return 0, fmt.Errorf("op=embedding.dims: model %q: %w", modelKey, err)
	}
	return dims, nil
}

// Upsert writes the vector, replacing any previous one for the pair. The
// vector travels as its text literal and is cast server-side so no pgvector
// codec registration is needed.
func (r *EmbeddingRepo) Upsert(ctx context.Context, articleID, modelKey string, vector []float32) error {
	tracer := otel.Tracer("repo.embeddings")
	ctx, span := tracer.Start(ctx, "embeddings.Upsert")
	defer span.End()

	q := `INSERT INTO embedding (article_id, model_key, vector)
	VALUES ($1, $2, $3::vector)
	ON CONFLICT (article_id, model_key)
	DO UPDATE SET vector = EXCLUDED.vector, created_at = now()`
	if _, err := r.Pool.Exec(ctx, q, articleID, modelKey, vectorLiteral(vector)); err != nil {
		return fmt.Errorf("op=embedding.upsert: %w", err)
	}
	return nil
}

// vectorLiteral renders a []float32 as the pgvector input form "[a,b,c]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
