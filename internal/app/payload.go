package app

import (
	"encoding/json"
	"strings"
	"time"

	"hearth/api/internal/store"
	"hearth/api/internal/visibility"
)

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func stringValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func messagePayload(m store.Message, requesterID string) map[string]any {
	var quantity any
	if m.ItemQuantity.Valid {
		quantity = json.Number(m.ItemQuantity.Decimal.String())
	}
	hiddenFor := m.HiddenFor
	if hiddenFor == nil {
		hiddenFor = []string{}
	}
	return map[string]any{
		"id":              m.ID,
		"thread_id":       m.ThreadID,
		"household_id":    m.HouseholdID,
		"sender_user_id":  m.SenderUserID,
		"message_type":    m.MessageType,
		"content":         m.Content,
		"topic_id":        stringValue(m.TopicID),
		"item_quantity":   quantity,
		"item_url":        stringValue(m.ItemURL),
		"checked_at":      timeValue(m.CheckedAt),
		"checked_by":      stringValue(m.CheckedBy),
		"pinned_at":       timeValue(m.PinnedAt),
		"archived_at":     timeValue(m.ArchivedAt),
		"archived_reason": stringValue(m.ArchivedReason),
		"deleted_at":      timeValue(m.DeletedAt),
		"deleted_by":      stringValue(m.DeletedBy),
		"hidden_for":      hiddenFor,
		"created_at":      m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"is_mine":         m.SenderUserID == requesterID,
		"is_hidden_by_me": m.IsHiddenFor(requesterID),
	}
}

func messagesPayload(messages []store.Message, requesterID string) []map[string]any {
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, messagePayload(m, requesterID))
	}
	return items
}

func viewPayload(mv visibility.MessageView, requesterID string) map[string]any {
	item := messagePayload(mv.Message, requesterID)
	item["is_unread"] = mv.IsUnread
	item["status"] = string(mv.Status)
	return item
}

func actionPayload(a store.MessageAction) map[string]any {
	payload := a.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return map[string]any{
		"id":            a.ID,
		"message_id":    a.MessageID,
		"thread_id":     a.ThreadID,
		"actor_user_id": a.ActorUserID,
		"action":        a.Action,
		"payload":       payload,
		"created_at":    a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func idsOf(messages []store.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// uniqueIDs drops blanks and duplicates, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
