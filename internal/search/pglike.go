package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hearth/api/internal/store"
)

// PgLike searches message content with ILIKE when Meilisearch is down or
// not configured. It applies the delete and hide filters itself.
type PgLike struct {
	db store.DB
}

func NewPgLike(db store.DB) *PgLike {
	return &PgLike{db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(text string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(text)) + "%"
}

func (p *PgLike) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	rows, err := p.db.Query(ctx, `
		SELECT id, thread_id, content
		FROM messages
		WHERE thread_id = $1
		  AND deleted_at IS NULL
		  AND NOT ($2::text = ANY(hidden_for))
		  AND content ILIKE $3 ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT $4
	`, q.ThreadID, q.RequesterID, likePattern(q.Text), normalizeLimit(q.Limit))
	if err != nil {
		return nil, 0, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.MessageID, &r.ThreadID, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, len(results), nil
}

// LoadAllRecords reads every live message for a full reindex.
func (p *PgLike) LoadAllRecords(ctx context.Context) ([]MessageRecord, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, thread_id, household_id, sender_user_id, content, created_at
		FROM messages
		WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("load messages for index: %w", err)
	}
	defer rows.Close()

	records := make([]MessageRecord, 0)
	for rows.Next() {
		var (
			r         MessageRecord
			createdAt time.Time
		)
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.HouseholdID, &r.SenderUserID, &r.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message record: %w", err)
		}
		r.CreatedAt = createdAt.Unix()
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordFor converts a stored message into its index record.
func RecordFor(m store.Message) MessageRecord {
	return MessageRecord{
		ID:           m.ID,
		ThreadID:     m.ThreadID,
		HouseholdID:  m.HouseholdID,
		SenderUserID: m.SenderUserID,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt.Unix(),
	}
}
