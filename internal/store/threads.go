package store

import (
	"context"
	"fmt"
)

const threadColumns = `id, household_id, purpose, title, created_at, last_message_at`

func (s *PostgresStore) CreateThread(ctx context.Context, thread Thread) (Thread, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO threads (household_id, purpose, title)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, thread.HouseholdID, thread.Purpose, thread.Title).Scan(&thread.ID, &thread.CreatedAt)
	if err != nil {
		return Thread{}, fmt.Errorf("insert thread: %w", err)
	}
	return thread, nil
}

func (s *PostgresStore) GetThread(ctx context.Context, threadID string) (Thread, error) {
	var thread Thread
	err := s.db.QueryRow(ctx, `SELECT `+threadColumns+` FROM threads WHERE id=$1`, threadID).
		Scan(&thread.ID, &thread.HouseholdID, &thread.Purpose, &thread.Title, &thread.CreatedAt, &thread.LastMessageAt)
	if err != nil {
		return Thread{}, notFound("get thread", err)
	}
	return thread, nil
}

// ListThreadsForUser lists threads of the user's active households with the
// number of visible messages from others the user has not read.
func (s *PostgresStore) ListThreadsForUser(ctx context.Context, userID string) ([]ThreadSummary, error) {
	const query = `
		SELECT t.id, t.household_id, t.purpose, t.title, t.created_at, t.last_message_at,
			(
				SELECT COUNT(*)
				FROM messages m
				LEFT JOIN message_receipts r ON r.message_id = m.id AND r.user_id = $1
				WHERE m.thread_id = t.id
					AND m.sender_user_id <> $1
					AND m.deleted_at IS NULL
					AND m.archived_at IS NULL
					AND COALESCE(r.status, 'sent') <> 'read'
			) AS unread_count
		FROM threads t
		JOIN household_links h ON h.id = t.household_id
		WHERE h.active AND (h.owner_user_id = $1 OR h.partner_user_id = $1)
		ORDER BY t.last_message_at DESC NULLS LAST, t.created_at DESC
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	items := make([]ThreadSummary, 0)
	for rows.Next() {
		var item ThreadSummary
		if err := rows.Scan(&item.ID, &item.HouseholdID, &item.Purpose, &item.Title, &item.CreatedAt, &item.LastMessageAt, &item.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
