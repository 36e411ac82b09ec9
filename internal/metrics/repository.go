package metrics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// Querier is satisfied by *pgxpool.Pool and pgxmock.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository reads queue statistics for the metrics aggregator.
type Repository struct {
	db Querier
}

func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// QueueDepth counts webhook queue rows per status.
func (r *Repository) QueueDepth(ctx context.Context) (map[domain.EventStatus]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM webhook_queue
		GROUP BY status
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query queue depth: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventStatus]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue depth: %w", err)
		}
		counts[domain.EventStatus(status)] = count
	}

	return counts, rows.Err()
}
