package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type FlagRepo struct {
	pool *pgxpool.Pool
}

type UserFlagRecord struct {
	UserID    int64
	Reason    string
	FlaggedAt time.Time
}

func NewFlagRepo(pool *pgxpool.Pool) *FlagRepo {
	return &FlagRepo{pool: pool}
}

// Insert stores a user flag. The unique (user_id, reason) constraint makes
// repeated flagging a no-op; the return value reports whether a new row
// was actually written.
func (r *FlagRepo) Insert(ctx context.Context, userID int64, reason string, flaggedAt time.Time) (bool, error) {
	if userID <= 0 || strings.TrimSpace(reason) == "" {
		return false, fmt.Errorf("invalid user flag payload")
	}
	if r.pool == nil {
		return false, ErrStorageUnavailable
	}

	result, err := r.pool.Exec(ctx, `
INSERT INTO user_flags (user_id, reason, flagged_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, reason) DO NOTHING
`, userID, reason, flaggedAt)
	if err != nil {
		return false, fmt.Errorf("insert user flag: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *FlagRepo) ListForUser(ctx context.Context, userID int64) ([]UserFlagRecord, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, ErrStorageUnavailable
	}

	rows, err := r.pool.Query(ctx, `
SELECT user_id, reason, flagged_at
FROM user_flags
WHERE user_id = $1
ORDER BY flagged_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user flags: %w", err)
	}
	defer rows.Close()

	items := make([]UserFlagRecord, 0)
	for rows.Next() {
		var item UserFlagRecord
		if err := rows.Scan(&item.UserID, &item.Reason, &item.FlaggedAt); err != nil {
			return nil, fmt.Errorf("scan user flag: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate user flags: %w", rows.Err())
	}

	return items, nil
}

func (r *FlagRepo) CountFlaggedSince(ctx context.Context, since time.Time) (int64, error) {
	if r.pool == nil {
		return 0, ErrStorageUnavailable
	}

	var count int64
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(DISTINCT user_id)
FROM user_flags
WHERE flagged_at >= $1
`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count flagged users: %w", err)
	}

	return count, nil
}
