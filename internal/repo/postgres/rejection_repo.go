package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RejectionRepo struct {
	pool *pgxpool.Pool
}

type RejectionWriteRecord struct {
	MatchID   string
	UserID    int64
	Reason    string
	Details   string
	CreatedAt time.Time
}

type RejectionAggregateRow struct {
	Reason string
	Count  int64
}

type RejectionFilters struct {
	From   time.Time
	To     time.Time
	Reason string
}

func NewRejectionRepo(pool *pgxpool.Pool) *RejectionRepo {
	return &RejectionRepo{pool: pool}
}

// Append writes one rejection log entry. The table is append-only: no update
// or delete statements exist anywhere in this package.
func (r *RejectionRepo) Append(ctx context.Context, rec RejectionWriteRecord) error {
	if strings.TrimSpace(rec.MatchID) == "" || rec.UserID <= 0 || strings.TrimSpace(rec.Reason) == "" {
		return fmt.Errorf("invalid rejection payload")
	}
	if r.pool == nil {
		return ErrStorageUnavailable
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO match_rejections (
	match_id,
	user_id,
	reason,
	details,
	created_at
) VALUES ($1, $2, $3, $4, $5)
`, rec.MatchID, rec.UserID, rec.Reason, rec.Details, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append rejection: %w", err)
	}

	return nil
}

func (r *RejectionRepo) CountForUserSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return 0, ErrStorageUnavailable
	}

	var count int64
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM match_rejections
WHERE user_id = $1 AND created_at >= $2
`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rejections: %w", err)
	}

	return count, nil
}

func (r *RejectionRepo) RecentReasonsForUser(ctx context.Context, userID int64, since time.Time, limit int) ([]string, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if limit <= 0 {
		limit = 10
	}
	if r.pool == nil {
		return nil, ErrStorageUnavailable
	}

	rows, err := r.pool.Query(ctx, `
SELECT reason
FROM match_rejections
WHERE user_id = $1 AND created_at >= $2
ORDER BY created_at DESC, id DESC
LIMIT $3
`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent rejection reasons: %w", err)
	}
	defer rows.Close()

	reasons := make([]string, 0, limit)
	for rows.Next() {
		var reason string
		if err := rows.Scan(&reason); err != nil {
			return nil, fmt.Errorf("scan rejection reason: %w", err)
		}
		reasons = append(reasons, reason)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate rejection reasons: %w", rows.Err())
	}

	return reasons, nil
}

func (r *RejectionRepo) Aggregate(ctx context.Context, filters RejectionFilters) ([]RejectionAggregateRow, error) {
	if r.pool == nil {
		return nil, ErrStorageUnavailable
	}

	from := filters.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	to := filters.To
	if to.IsZero() {
		to = time.Now().UTC()
	}

	rows, err := r.pool.Query(ctx, `
SELECT reason, COUNT(*)
FROM match_rejections
WHERE created_at >= $1
	AND created_at < $2
	AND ($3 = '' OR reason = $3)
GROUP BY reason
ORDER BY COUNT(*) DESC, reason ASC
`, from, to, strings.TrimSpace(filters.Reason))
	if err != nil {
		return nil, fmt.Errorf("aggregate rejections: %w", err)
	}
	defer rows.Close()

	items := make([]RejectionAggregateRow, 0)
	for rows.Next() {
		var item RejectionAggregateRow
		if err := rows.Scan(&item.Reason, &item.Count); err != nil {
			return nil, fmt.Errorf("scan rejection aggregate: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate rejection aggregates: %w", rows.Err())
	}

	return items, nil
}
