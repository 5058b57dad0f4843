package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messageColumnNames = []string{
	"id", "thread_id", "household_id", "sender_user_id", "message_type", "content", "topic_id",
	"item_quantity", "item_url", "checked_at", "checked_by", "pinned_at", "archived_at", "archived_reason",
	"deleted_at", "deleted_by", "hidden_for", "created_at",
}

func strPtr(value string) *string { return &value }

func timePtr(value time.Time) *time.Time { return &value }

type messageRow struct {
	id, thread, sender, content string
	createdAt                   time.Time
	checkedAt                   *time.Time
	checkedBy                   *string
	deletedAt                   *time.Time
	deletedBy                   *string
	hiddenFor                   []string
}

func messageRows(mock pgxmock.PgxPoolIface, items ...messageRow) *pgxmock.Rows {
	rows := mock.NewRows(messageColumnNames)
	for _, item := range items {
		hidden := item.hiddenFor
		if hidden == nil {
			hidden = []string{}
		}
		rows.AddRow(
			item.id, item.thread, "hh-1", item.sender, "text", item.content, nil,
			nil, nil, item.checkedAt, item.checkedBy, nil, nil, nil,
			item.deletedAt, item.deletedBy, hidden, item.createdAt,
		)
	}
	return rows
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestListMessagesByThread(t *testing.T) {
	s, mock := newMockStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE thread_id = $1 AND deleted_at IS NULL AND ($2 OR archived_at IS NULL)")).
		WithArgs("thread-1", false).
		WillReturnRows(messageRows(mock,
			messageRow{id: "m1", thread: "thread-1", sender: "u1", content: "Buy milk", createdAt: base},
			messageRow{id: "m2", thread: "thread-1", sender: "u2", content: "Eggs", createdAt: base.Add(time.Minute), hiddenFor: []string{"u1"}},
		))

	messages, err := s.ListMessagesByThread(context.Background(), "thread-1", false)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "Buy milk", messages[0].Content)
	assert.Empty(t, messages[0].HiddenFor)
	assert.True(t, messages[1].IsHiddenFor("u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesByThreadCapsPage(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 200")).
		WithArgs("thread-1", true).
		WillReturnRows(messageRows(mock))

	messages, err := s.ListMessagesByThread(context.Background(), "thread-1", true)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.NotNil(t, messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteMessagesOnlyTouchesOwnMessages(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1) AND sender_user_id = $2 AND deleted_at IS NULL")).
		WithArgs([]string{"m1", "m2"}, "u1").
		WillReturnRows(messageRows(mock,
			messageRow{id: "m1", thread: "thread-1", sender: "u1", content: "Buy milk", createdAt: now, deletedAt: timePtr(now), deletedBy: strPtr("u1")},
		))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO message_actions")).
		WithArgs([]string{"m1"}, []string{"thread-1"}, "u1", "delete", []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	deleted, err := s.SoftDeleteMessages(context.Background(), []string{"m1", "m2"}, "u1")
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "u1", *deleted[0].DeletedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteMessagesNoMatchSkipsActionLog(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1) AND sender_user_id = $2 AND deleted_at IS NULL")).
		WithArgs([]string{"m1"}, "u2").
		WillReturnRows(messageRows(mock))
	mock.ExpectCommit()

	deleted, err := s.SoftDeleteMessages(context.Background(), []string{"m1"}, "u2")
	require.NoError(t, err)
	assert.Empty(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHideMessagesRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("array_append(hidden_for, $2::text)")).
		WithArgs([]string{"m1", "m2"}, "u1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.HideMessages(context.Background(), []string{"m1", "m2"}, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hide messages")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleCheckedMissingMessage(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("checked_by = CASE WHEN checked_at IS NULL THEN $2::text ELSE NULL END")).
		WithArgs("missing", "u1").
		WillReturnRows(messageRows(mock))
	mock.ExpectCommit()

	_, err := s.ToggleChecked(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearCheckedArchivesCheckedRows(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE thread_id = $1 AND checked_at IS NOT NULL AND archived_at IS NULL")).
		WithArgs("thread-1", "shopping_cleared").
		WillReturnRows(messageRows(mock,
			messageRow{id: "m1", thread: "thread-1", sender: "u1", content: "Milk", createdAt: now, checkedAt: timePtr(now), checkedBy: strPtr("u2")},
			messageRow{id: "m3", thread: "thread-1", sender: "u2", content: "Bread", createdAt: now, checkedAt: timePtr(now), checkedBy: strPtr("u1")},
		))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO message_actions")).
		WithArgs([]string{"m1", "m3"}, []string{"thread-1", "thread-1"}, "u1", "clear_checked", []byte(`{"reason":"shopping_cleared"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	archived, err := s.ClearChecked(context.Background(), "thread-1", "shopping_cleared", "u1")
	require.NoError(t, err)
	assert.Len(t, archived, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveMessagesSkipsAlreadyArchived(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1) AND archived_at IS NULL")).
		WithArgs([]string{"m1"}, "manual").
		WillReturnRows(messageRows(mock))
	mock.ExpectCommit()

	archived, err := s.ArchiveMessages(context.Background(), []string{"m1"}, "manual", "u1")
	require.NoError(t, err)
	assert.Empty(t, archived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessageTouchesThreadAndDeliversReceipt(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs("thread-1", "hh-1", "u1", "Buy milk", (*string)(nil), pgxmock.AnyArg()).
		WillReturnRows(messageRows(mock, messageRow{id: "m1", thread: "thread-1", sender: "u1", content: "Buy milk", createdAt: now}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE threads SET last_message_at = $2 WHERE id = $1")).
		WithArgs("thread-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO message_receipts")).
		WithArgs("m1", "u2").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := s.InsertMessage(context.Background(), NewMessage{
		ThreadID:        "thread-1",
		HouseholdID:     "hh-1",
		SenderUserID:    "u1",
		Content:         "Buy milk",
		RecipientUserID: "u2",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetThreadNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM threads WHERE id=$1")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetThread(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessageActionsDecodesPayload(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := mock.NewRows([]string{"id", "message_id", "thread_id", "actor_user_id", "action", "payload", "created_at"}).
		AddRow(int64(1), "m1", "thread-1", "u1", "archive", []byte(`{"reason":"manual"}`), now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM message_actions")).
		WithArgs([]string{"m1"}).
		WillReturnRows(rows)

	actions, err := s.ListMessageActions(context.Background(), []string{"m1"})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "manual", actions[0].Payload["reason"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
