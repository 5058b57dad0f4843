package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const insertDeliveredReceipt = `
	INSERT INTO message_receipts (message_id, user_id, status, delivered_at)
	VALUES ($1, $2, 'delivered', NOW())
	ON CONFLICT (message_id, user_id) DO NOTHING
`

func upsertDelivered(ctx context.Context, tx pgx.Tx, messageID, recipientID string) error {
	if _, err := tx.Exec(ctx, insertDeliveredReceipt, messageID, recipientID); err != nil {
		return fmt.Errorf("upsert delivered receipt: %w", err)
	}
	return nil
}

// UpsertDelivered records delivery; an existing receipt is never downgraded.
func (s *PostgresStore) UpsertDelivered(ctx context.Context, messageID, recipientID string) error {
	if _, err := s.db.Exec(ctx, insertDeliveredReceipt, messageID, recipientID); err != nil {
		return fmt.Errorf("upsert delivered receipt: %w", err)
	}
	return nil
}

// MarkRead moves every receipt of userID for ids to read with two set-based
// statements: insert the missing rows, then upgrade the existing ones.
// It returns how many receipts changed.
func (s *PostgresStore) MarkRead(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var changed int64
	err := s.withTx(ctx, "mark read", func(tx pgx.Tx) error {
		inserted, err := tx.Exec(ctx, `
			INSERT INTO message_receipts (message_id, user_id, status, delivered_at, read_at)
			SELECT id, $2, 'read', NOW(), NOW()
			FROM unnest($1::text[]) AS id
			ON CONFLICT (message_id, user_id) DO NOTHING
		`, ids, userID)
		if err != nil {
			return fmt.Errorf("insert read receipts: %w", err)
		}

		updated, err := tx.Exec(ctx, `
			UPDATE message_receipts SET status = 'read', read_at = NOW()
			WHERE user_id = $2 AND message_id = ANY($1) AND status <> 'read'
		`, ids, userID)
		if err != nil {
			return fmt.Errorf("update read receipts: %w", err)
		}
		changed = inserted.RowsAffected() + updated.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// ReceiptStatuses returns userID's receipt status for the ids that have one.
func (s *PostgresStore) ReceiptStatuses(ctx context.Context, ids []string, userID string) (map[string]ReceiptStatus, error) {
	statuses := make(map[string]ReceiptStatus, len(ids))
	if len(ids) == 0 || userID == "" {
		return statuses, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT message_id, status
		FROM message_receipts
		WHERE user_id = $2 AND message_id = ANY($1)
	`, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, status string
		if err := rows.Scan(&messageID, &status); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		statuses[messageID] = ReceiptStatus(status)
	}
	return statuses, rows.Err()
}
