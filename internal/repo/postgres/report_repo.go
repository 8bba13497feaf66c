package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
)

// ReportRepo reads lost/found reports owned by the surrounding platform.
// This service never writes to the reports table.
type ReportRepo struct {
	pool *pgxpool.Pool
}

type ReportRecord struct {
	ID          int64
	Kind        enums.ReportKind
	OwnerUserID int64
	Status      enums.ReportStatus
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

func (r *ReportRepo) GetByID(ctx context.Context, id int64) (ReportRecord, bool, error) {
	if id <= 0 {
		return ReportRecord{}, false, fmt.Errorf("invalid report id")
	}
	if r.pool == nil {
		return ReportRecord{}, false, ErrStorageUnavailable
	}

	var rec ReportRecord
	var kind, status string
	err := r.pool.QueryRow(ctx, `
SELECT id, kind, owner_user_id, status
FROM reports
WHERE id = $1
`, id).Scan(&rec.ID, &kind, &rec.OwnerUserID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReportRecord{}, false, nil
		}
		return ReportRecord{}, false, fmt.Errorf("get report: %w", err)
	}

	rec.Kind = enums.ReportKind(kind)
	rec.Status = enums.ReportStatus(status)
	return rec, true, nil
}
