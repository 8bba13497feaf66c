package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
)

type MatchRepo struct {
	pool *pgxpool.Pool
}

type MatchRecord struct {
	ID                   string
	SourceReportID       int64
	TargetReportID       int64
	Status               enums.MatchStatus
	SourceConfirmed      bool
	TargetConfirmed      bool
	VerificationAttempts int
	RejectionReason      string
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

const matchColumns = `
	id,
	source_report_id,
	target_report_id,
	status,
	source_confirmed,
	target_confirmed,
	verification_attempts,
	COALESCE(rejection_reason, ''),
	COALESCE(notes, ''),
	created_at,
	updated_at`

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

func (r *MatchRepo) Insert(ctx context.Context, rec MatchRecord) error {
	if strings.TrimSpace(rec.ID) == "" || rec.SourceReportID <= 0 || rec.TargetReportID <= 0 {
		return fmt.Errorf("invalid match payload")
	}
	if r.pool == nil {
		return ErrStorageUnavailable
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO matches (
	id,
	source_report_id,
	target_report_id,
	status,
	source_confirmed,
	target_confirmed,
	verification_attempts,
	notes,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, FALSE, FALSE, 0, $5, $6, $6)
`, rec.ID, rec.SourceReportID, rec.TargetReportID, string(rec.Status), rec.Notes, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	return nil
}

func (r *MatchRepo) GetByID(ctx context.Context, id string) (MatchRecord, bool, error) {
	if strings.TrimSpace(id) == "" {
		return MatchRecord{}, false, fmt.Errorf("match id is required")
	}
	if r.pool == nil {
		return MatchRecord{}, false, ErrStorageUnavailable
	}

	row := r.pool.QueryRow(ctx, `
SELECT`+matchColumns+`
FROM matches
WHERE id = $1
`, id)

	rec, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, false, nil
		}
		return MatchRecord{}, false, fmt.Errorf("get match: %w", err)
	}

	return rec, true, nil
}

// FindActiveByReportID returns the non-terminal match a report participates
// in, if any. Backed by partial unique indexes, so at most one row exists.
func (r *MatchRepo) FindActiveByReportID(ctx context.Context, reportID int64) (MatchRecord, bool, error) {
	if reportID <= 0 {
		return MatchRecord{}, false, fmt.Errorf("invalid report id")
	}
	if r.pool == nil {
		return MatchRecord{}, false, ErrStorageUnavailable
	}

	row := r.pool.QueryRow(ctx, `
SELECT`+matchColumns+`
FROM matches
WHERE (source_report_id = $1 OR target_report_id = $1)
	AND status = ANY($2)
LIMIT 1
`, reportID, statusStrings(nonTerminalStatuses()))

	rec, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, false, nil
		}
		return MatchRecord{}, false, fmt.Errorf("find active match by report: %w", err)
	}

	return rec, true, nil
}

// TransitionStatus applies a status change only when the current status is in
// the from set. The conditional update is the per-match mutual exclusion: a
// concurrent transition that commits first makes this one report applied=false.
func (r *MatchRepo) TransitionStatus(ctx context.Context, id string, from []enums.MatchStatus, to enums.MatchStatus, notes, rejectionReason string) (MatchRecord, bool, error) {
	if strings.TrimSpace(id) == "" || len(from) == 0 || !to.IsValid() {
		return MatchRecord{}, false, fmt.Errorf("invalid transition payload")
	}
	if r.pool == nil {
		return MatchRecord{}, false, ErrStorageUnavailable
	}

	row := r.pool.QueryRow(ctx, `
UPDATE matches
SET
	status = $2,
	notes = CASE WHEN $3 <> '' THEN $3 ELSE notes END,
	rejection_reason = CASE WHEN $4 <> '' THEN $4 ELSE rejection_reason END,
	updated_at = NOW()
WHERE id = $1 AND status = ANY($5)
RETURNING`+matchColumns+`
`, id, string(to), notes, rejectionReason, statusStrings(from))

	rec, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, false, nil
		}
		return MatchRecord{}, false, fmt.Errorf("transition match status: %w", err)
	}

	return rec, true, nil
}

// SetHandoverFlag sets the confirmation flag for a role. Flags are monotonic:
// the OR keeps an already-true flag true, so a repeated confirm is a no-op
// that still returns the current record.
func (r *MatchRepo) SetHandoverFlag(ctx context.Context, id string, role enums.HandoverRole) (MatchRecord, bool, error) {
	if strings.TrimSpace(id) == "" || !role.IsValid() {
		return MatchRecord{}, false, fmt.Errorf("invalid handover flag payload")
	}
	if r.pool == nil {
		return MatchRecord{}, false, ErrStorageUnavailable
	}

	row := r.pool.QueryRow(ctx, `
UPDATE matches
SET
	source_confirmed = source_confirmed OR $2,
	target_confirmed = target_confirmed OR $3,
	updated_at = NOW()
WHERE id = $1 AND status = ANY($4)
RETURNING`+matchColumns+`
`, id, role == enums.HandoverRoleSource, role == enums.HandoverRoleTarget, statusStrings(nonTerminalStatuses()))

	rec, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, false, nil
		}
		return MatchRecord{}, false, fmt.Errorf("set handover flag: %w", err)
	}

	return rec, true, nil
}

// IncrementVerificationAttempts bumps the attempt counter while the record is
// non-terminal and under the cap. applied=false means terminal, exhausted, or
// missing; callers disambiguate with GetByID.
func (r *MatchRepo) IncrementVerificationAttempts(ctx context.Context, id string, max int) (MatchRecord, bool, error) {
	if strings.TrimSpace(id) == "" || max <= 0 {
		return MatchRecord{}, false, fmt.Errorf("invalid verification attempt payload")
	}
	if r.pool == nil {
		return MatchRecord{}, false, ErrStorageUnavailable
	}

	row := r.pool.QueryRow(ctx, `
UPDATE matches
SET
	verification_attempts = verification_attempts + 1,
	updated_at = NOW()
WHERE id = $1 AND status = ANY($2) AND verification_attempts < $3
RETURNING`+matchColumns+`
`, id, statusStrings(nonTerminalStatuses()), max)

	rec, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, false, nil
		}
		return MatchRecord{}, false, fmt.Errorf("increment verification attempts: %w", err)
	}

	return rec, true, nil
}

func (r *MatchRepo) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if r.pool == nil {
		return nil, ErrStorageUnavailable
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+matchColumns+`
FROM matches
WHERE status = ANY($1) AND created_at < $2
ORDER BY created_at ASC
LIMIT $3
`, statusStrings(nonTerminalStatuses()), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue matches: %w", err)
	}
	defer rows.Close()

	items := make([]MatchRecord, 0, limit)
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overdue match: %w", err)
		}
		items = append(items, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate overdue matches: %w", rows.Err())
	}

	return items, nil
}

func scanMatch(row pgx.Row) (MatchRecord, error) {
	var rec MatchRecord
	var status string
	if err := row.Scan(
		&rec.ID,
		&rec.SourceReportID,
		&rec.TargetReportID,
		&status,
		&rec.SourceConfirmed,
		&rec.TargetConfirmed,
		&rec.VerificationAttempts,
		&rec.RejectionReason,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return MatchRecord{}, err
	}
	rec.Status = enums.MatchStatus(status)
	return rec, nil
}

func nonTerminalStatuses() []enums.MatchStatus {
	return []enums.MatchStatus{enums.MatchStatusSuggested, enums.MatchStatusConfirmed}
}

func statusStrings(statuses []enums.MatchStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
