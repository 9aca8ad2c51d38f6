package store

import (
	"context"
	"fmt"
)

// ToggleBlock removes the (blocker, target) relation when present and
// creates it otherwise, returning the resulting state. Toggles of the same
// pair are serialised on a transaction-scoped advisory lock, so two racing
// calls always alternate instead of both inserting or both deleting.
func (s *PostgresStore) ToggleBlock(ctx context.Context, blockerID, targetID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin toggle block: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1::int, $2::int)`, blockerID, targetID); err != nil {
		return false, fmt.Errorf("lock block pair: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM blocked_users
		WHERE blocker_id=$1 AND blocked_id=$2
	`, blockerID, targetID)
	if err != nil {
		return false, fmt.Errorf("delete block: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete block rows: %w", err)
	}

	blocked := affected == 0
	if blocked {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blocked_users (blocker_id, blocked_id)
			VALUES ($1, $2)
			ON CONFLICT (blocker_id, blocked_id) DO NOTHING
		`, blockerID, targetID); err != nil {
			return false, translate(err, "insert block")
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit toggle block: %w", err)
	}
	return blocked, nil
}

// IsBlockedEither reports whether a or b has blocked the other.
func (s *PostgresStore) IsBlockedEither(ctx context.Context, a, b int64) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM blocked_users
			WHERE (blocker_id=$1 AND blocked_id=$2) OR (blocker_id=$2 AND blocked_id=$1)
		)
	`, a, b).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return blocked, nil
}

func (s *PostgresStore) BlockedBy(ctx context.Context, blockerID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT blocked_id FROM blocked_users WHERE blocker_id=$1 ORDER BY blocked_id
	`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("list blocked users: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocked user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocked users: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) InsertReport(ctx context.Context, reporterID, reportedID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (reporter_id, reported_id) VALUES ($1, $2)
	`, reporterID, reportedID)
	if err != nil {
		return translate(err, "insert report")
	}
	return nil
}

func (s *PostgresStore) ReportCounts(ctx context.Context) ([]ReportCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reported_id, COUNT(*) FROM reports GROUP BY reported_id ORDER BY COUNT(*) DESC, reported_id
	`)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	defer rows.Close()

	items := make([]ReportCount, 0)
	for rows.Next() {
		var item ReportCount
		if err := rows.Scan(&item.ReportedID, &item.Count); err != nil {
			return nil, fmt.Errorf("scan report count: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report counts: %w", err)
	}
	return items, nil
}

// ReportCount returns the number of reports filed against one identity.
func (s *PostgresStore) ReportCount(ctx context.Context, reportedID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE reported_id=$1`, reportedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return count, nil
}
