package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepo reads the ownership security questions attached to a found
// report by the intake flow. Normalized answers never leave the repository
// consumers; nothing here is exposed over the wire.
type QuestionRepo struct {
	pool *pgxpool.Pool
}

type SecurityQuestionRecord struct {
	ID         int64
	ReportID   int64
	Question   string
	AnswerNorm string
}

type SecurityQuestionWrite struct {
	Question   string
	AnswerNorm string
}

func NewQuestionRepo(pool *pgxpool.Pool) *QuestionRepo {
	return &QuestionRepo{pool: pool}
}

func (r *QuestionRepo) ListForReport(ctx context.Context, reportID int64) ([]SecurityQuestionRecord, error) {
	if reportID <= 0 {
		return nil, fmt.Errorf("invalid report id")
	}
	if r.pool == nil {
		return nil, ErrStorageUnavailable
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, report_id, question, answer_norm
FROM report_security_questions
WHERE report_id = $1
ORDER BY id ASC
`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list security questions: %w", err)
	}
	defer rows.Close()

	items := make([]SecurityQuestionRecord, 0)
	for rows.Next() {
		var item SecurityQuestionRecord
		if err := rows.Scan(&item.ID, &item.ReportID, &item.Question, &item.AnswerNorm); err != nil {
			return nil, fmt.Errorf("scan security question: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate security questions: %w", rows.Err())
	}

	return items, nil
}

// ReplaceForReport swaps the question set for a report in one transaction, so
// a claimant never observes a half-replaced set.
func (r *QuestionRepo) ReplaceForReport(ctx context.Context, reportID int64, items []SecurityQuestionWrite) error {
	if reportID <= 0 {
		return fmt.Errorf("invalid report id")
	}
	if r.pool == nil {
		return ErrStorageUnavailable
	}

	return WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
DELETE FROM report_security_questions
WHERE report_id = $1
`, reportID); err != nil {
			return fmt.Errorf("clear security questions: %w", err)
		}

		for _, item := range items {
			if _, err := tx.Exec(ctx, `
INSERT INTO report_security_questions (report_id, question, answer_norm)
VALUES ($1, $2, $3)
`, reportID, item.Question, item.AnswerNorm); err != nil {
				return fmt.Errorf("insert security question: %w", err)
			}
		}

		return nil
	})
}
