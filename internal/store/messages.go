package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// MessagePageSize caps how many messages a thread listing returns.
const MessagePageSize = 200

const messageColumns = `id, thread_id, household_id, sender_user_id, message_type, content, topic_id,
	item_quantity, item_url, checked_at, checked_by, pinned_at, archived_at, archived_reason,
	deleted_at, deleted_by, hidden_for, created_at`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.ThreadID, &m.HouseholdID, &m.SenderUserID, &m.MessageType, &m.Content, &m.TopicID,
		&m.ItemQuantity, &m.ItemURL, &m.CheckedAt, &m.CheckedBy, &m.PinnedAt, &m.ArchivedAt, &m.ArchivedReason,
		&m.DeletedAt, &m.DeletedBy, &m.HiddenFor, &m.CreatedAt,
	)
	if m.HiddenFor == nil {
		m.HiddenFor = []string{}
	}
	return m, err
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	items := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// InsertMessage stores a message, bumps the thread's last_message_at and
// records a delivered receipt for the recipient, all in one transaction.
func (s *PostgresStore) InsertMessage(ctx context.Context, input NewMessage) (Message, error) {
	var created Message
	err := s.withTx(ctx, "insert message", func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO messages (thread_id, household_id, sender_user_id, message_type, content, topic_id, item_quantity)
			VALUES ($1, $2, $3, 'text', $4, $5, $6)
			RETURNING `+messageColumns,
			input.ThreadID, input.HouseholdID, input.SenderUserID, input.Content, input.TopicID, input.ItemQuantity,
		)
		m, err := scanMessage(row)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		created = m

		if _, err := tx.Exec(ctx, `UPDATE threads SET last_message_at = $2 WHERE id = $1`, m.ThreadID, m.CreatedAt); err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}

		if input.RecipientUserID != "" && input.RecipientUserID != input.SenderUserID {
			if err := upsertDelivered(ctx, tx, m.ID, input.RecipientUserID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return created, nil
}

// ListMessagesByThread returns the most recent MessagePageSize messages in
// ascending created_at order. Deleted messages are never included.
func (s *PostgresStore) ListMessagesByThread(ctx context.Context, threadID string, includeArchived bool) ([]Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT %s
			FROM messages
			WHERE thread_id = $1 AND deleted_at IS NULL AND ($2 OR archived_at IS NULL)
			ORDER BY created_at DESC, id DESC
			LIMIT %d
		) recent
		ORDER BY created_at ASC, id ASC
	`, messageColumns, messageColumns, MessagePageSize)

	rows, err := s.db.Query(ctx, query, threadID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return collectMessages(rows)
}

// GetMessages loads messages by id regardless of lifecycle state.
func (s *PostgresStore) GetMessages(ctx context.Context, ids []string) ([]Message, error) {
	if len(ids) == 0 {
		return []Message{}, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1) ORDER BY created_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return collectMessages(rows)
}

// SoftDeleteMessages marks the actor's own live messages among ids as
// deleted. Messages sent by someone else or already deleted are skipped,
// not reported.
func (s *PostgresStore) SoftDeleteMessages(ctx context.Context, ids []string, actorID string) ([]Message, error) {
	return s.mutateMessages(ctx, ActionRecord{Action: "delete", ActorID: actorID}, `
		UPDATE messages SET deleted_at = NOW(), deleted_by = $2
		WHERE id = ANY($1) AND sender_user_id = $2 AND deleted_at IS NULL
		RETURNING `+messageColumns, ids, actorID)
}

func (s *PostgresStore) RestoreMessages(ctx context.Context, ids []string, actorID string) ([]Message, error) {
	return s.mutateMessages(ctx, ActionRecord{Action: "undo", ActorID: actorID}, `
		UPDATE messages SET deleted_at = NULL, deleted_by = NULL
		WHERE id = ANY($1)
		RETURNING `+messageColumns, ids)
}

func (s *PostgresStore) HideMessages(ctx context.Context, ids []string, userID string) ([]Message, error) {
	return s.mutateMessages(ctx, ActionRecord{Action: "hide", ActorID: userID}, `
		UPDATE messages
		SET hidden_for = CASE WHEN $2::text = ANY(hidden_for) THEN hidden_for ELSE array_append(hidden_for, $2::text) END
		WHERE id = ANY($1)
		RETURNING `+messageColumns, ids, userID)
}

func (s *PostgresStore) UnhideMessages(ctx context.Context, ids []string, userID string) ([]Message, error) {
	return s.mutateMessages(ctx, ActionRecord{Action: "unhide", ActorID: userID}, `
		UPDATE messages SET hidden_for = array_remove(hidden_for, $2::text)
		WHERE id = ANY($1)
		RETURNING `+messageColumns, ids, userID)
}

func (s *PostgresStore) ToggleChecked(ctx context.Context, id, actorID string) (Message, error) {
	return s.mutateOne(ctx, ActionRecord{Action: "toggle_check", ActorID: actorID}, `
		UPDATE messages
		SET checked_at = CASE WHEN checked_at IS NULL THEN NOW() ELSE NULL END,
			checked_by = CASE WHEN checked_at IS NULL THEN $2::text ELSE NULL END
		WHERE id = $1
		RETURNING `+messageColumns, id, actorID)
}

func (s *PostgresStore) TogglePinned(ctx context.Context, id, actorID string) (Message, error) {
	return s.mutateOne(ctx, ActionRecord{Action: "toggle_pin", ActorID: actorID}, `
		UPDATE messages
		SET pinned_at = CASE WHEN pinned_at IS NULL THEN NOW() ELSE NULL END
		WHERE id = $1
		RETURNING `+messageColumns, id)
}

func (s *PostgresStore) SetItemQuantity(ctx context.Context, id string, quantity decimal.NullDecimal, actorID string) (Message, error) {
	payload := map[string]any{"quantity": nil}
	if quantity.Valid {
		payload["quantity"] = quantity.Decimal.String()
	}
	return s.mutateOne(ctx, ActionRecord{Action: "set_quantity", ActorID: actorID, Payload: payload}, `
		UPDATE messages SET item_quantity = $2
		WHERE id = $1
		RETURNING `+messageColumns, id, quantity)
}

func (s *PostgresStore) SetItemURL(ctx context.Context, id string, url *string, actorID string) (Message, error) {
	return s.mutateOne(ctx, ActionRecord{Action: "set_item_url", ActorID: actorID, Payload: map[string]any{"url": url}}, `
		UPDATE messages SET item_url = $2
		WHERE id = $1
		RETURNING `+messageColumns, id, url)
}

func (s *PostgresStore) UpdateContent(ctx context.Context, id, content, actorID string) (Message, error) {
	return s.mutateOne(ctx, ActionRecord{Action: "update_content", ActorID: actorID}, `
		UPDATE messages SET content = $2
		WHERE id = $1
		RETURNING `+messageColumns, id, content)
}

// ArchiveMessages archives the unarchived messages among ids. The first
// archive keeps its timestamp and reason.
func (s *PostgresStore) ArchiveMessages(ctx context.Context, ids []string, reason, actorID string) ([]Message, error) {
	return s.mutateMessages(ctx, ActionRecord{Action: "archive", ActorID: actorID, Payload: map[string]any{"reason": reason}}, `
		UPDATE messages SET archived_at = NOW(), archived_reason = $2
		WHERE id = ANY($1) AND archived_at IS NULL
		RETURNING `+messageColumns, ids, reason)
}

func (s *PostgresStore) UnarchiveMessages(ctx context.Context, ids []string, actorID string) ([]Message, error) {
	return s.mutateMessages(ctx, ActionRecord{Action: "unarchive", ActorID: actorID}, `
		UPDATE messages SET archived_at = NULL, archived_reason = NULL
		WHERE id = ANY($1)
		RETURNING `+messageColumns, ids)
}

// ClearChecked archives every checked, not yet archived message in the thread.
func (s *PostgresStore) ClearChecked(ctx context.Context, threadID, reason, actorID string) ([]Message, error) {
	return s.mutateMessages(ctx, ActionRecord{Action: "clear_checked", ActorID: actorID, Payload: map[string]any{"reason": reason}}, `
		UPDATE messages SET archived_at = NOW(), archived_reason = $2
		WHERE thread_id = $1 AND checked_at IS NOT NULL AND archived_at IS NULL
		RETURNING `+messageColumns, threadID, reason)
}

func (s *PostgresStore) mutateOne(ctx context.Context, record ActionRecord, query string, args ...any) (Message, error) {
	updated, err := s.mutateMessages(ctx, record, query, args...)
	if err != nil {
		return Message{}, err
	}
	if len(updated) == 0 {
		return Message{}, ErrNotFound
	}
	return updated[0], nil
}

// mutateMessages runs a set-based UPDATE ... RETURNING and appends one
// action log row per affected message in the same transaction.
func (s *PostgresStore) mutateMessages(ctx context.Context, record ActionRecord, query string, args ...any) ([]Message, error) {
	var updated []Message
	err := s.withTx(ctx, record.Action, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s messages: %w", record.Action, err)
		}
		updated, err = collectMessages(rows)
		if err != nil {
			return fmt.Errorf("%s messages: %w", record.Action, err)
		}
		return insertActions(ctx, tx, updated, record)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func insertActions(ctx context.Context, tx pgx.Tx, messages []Message, record ActionRecord) error {
	if len(messages) == 0 {
		return nil
	}
	messageIDs := make([]string, 0, len(messages))
	threadIDs := make([]string, 0, len(messages))
	for _, m := range messages {
		messageIDs = append(messageIDs, m.ID)
		threadIDs = append(threadIDs, m.ThreadID)
	}

	payload := record.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode action payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO message_actions (message_id, thread_id, actor_user_id, action, payload)
		SELECT a.message_id, a.thread_id, $3, $4, $5
		FROM unnest($1::text[], $2::text[]) AS a(message_id, thread_id)
	`, messageIDs, threadIDs, record.ActorID, record.Action, encoded)
	if err != nil {
		return fmt.Errorf("record %s action: %w", record.Action, err)
	}
	return nil
}

// ListMessageActions returns the action log for the given messages, oldest first.
func (s *PostgresStore) ListMessageActions(ctx context.Context, messageIDs []string) ([]MessageAction, error) {
	items := make([]MessageAction, 0)
	if len(messageIDs) == 0 {
		return items, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, message_id, thread_id, actor_user_id, action, payload, created_at
		FROM message_actions
		WHERE message_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("list message actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item MessageAction
		var payload []byte
		if err := rows.Scan(&item.ID, &item.MessageID, &item.ThreadID, &item.ActorUserID, &item.Action, &payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message action: %w", err)
		}
		item.Payload = map[string]any{}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &item.Payload)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
