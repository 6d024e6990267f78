package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bountywizard/internal/domain"
)

// SubmissionFilter narrows ListSubmissions. The cursor is the (created_at, id) of
// the last row of the previous page.
type SubmissionFilter struct {
	ActorID         string
	Type            string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

const submissionColumns = `id,session_id,actor_id,title,type,reward_currency,reward_amount,bounty_json,created_at`

func (r Repo) InsertSubmission(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	bounty, err := json.Marshal(s.Bounty)
	if err != nil {
		return fmt.Errorf("marshal bounty: %w", err)
	}
	_, err = r.conn(tx).ExecContext(ctx, `INSERT INTO submissions(`+submissionColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.SessionID, s.ActorID, s.Title, s.Type, nullable(s.RewardCurrency), nullableFloat(s.RewardAmount), string(bounty), s.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var s domain.Submission
	var currency sql.NullString
	var amount sql.NullFloat64
	var bounty string
	if err := row.Scan(&s.ID, &s.SessionID, &s.ActorID, &s.Title, &s.Type, &currency, &amount, &bounty, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, ErrNotFound
		}
		return s, err
	}
	s.RewardCurrency = currency.String
	s.RewardAmount = amount.Float64
	if err := json.Unmarshal([]byte(bounty), &s.Bounty); err != nil {
		return s, fmt.Errorf("decode bounty %s: %w", s.ID, err)
	}
	return s, nil
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return scanSubmission(r.DB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id))
}

// ListSubmissions returns submissions newest first.
func (r Repo) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]domain.Submission, error) {
	var clauses []string
	var args []any
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
