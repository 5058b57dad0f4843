package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"hearth/api/internal/realtime"
	"hearth/api/internal/search"
	"hearth/api/internal/store"
	"hearth/api/internal/visibility"
)

// ThreadPage is the requester's resolved view of one thread.
type ThreadPage struct {
	Thread    store.Thread
	Household store.HouseholdLink
	View      visibility.ThreadView
	Actions   []store.MessageAction
}

// FetchThread reads a thread as userID sees it. It performs no writes.
func (s *Service) FetchThread(ctx context.Context, userID, threadID string, includeArchived bool) (ThreadPage, error) {
	access, err := s.accessThread(ctx, threadID, userID)
	if err != nil {
		return ThreadPage{}, err
	}

	messages, err := s.store.ListMessagesByThread(ctx, threadID, includeArchived)
	if err != nil {
		return ThreadPage{}, s.storeErr(ctx, "load messages", err, "Thread not found")
	}
	mineIDs, theirIDs := visibility.SplitIDs(messages, userID)

	myReceipts, err := s.store.ReceiptStatuses(ctx, theirIDs, userID)
	if err != nil {
		return ThreadPage{}, s.storeErr(ctx, "load receipts", err, "Receipts not found")
	}
	partnerReceipts := map[string]store.ReceiptStatus{}
	if access.partnerID != "" {
		partnerReceipts, err = s.store.ReceiptStatuses(ctx, mineIDs, access.partnerID)
		if err != nil {
			return ThreadPage{}, s.storeErr(ctx, "load receipts", err, "Receipts not found")
		}
	}

	actions, err := s.store.ListMessageActions(ctx, idsOf(messages))
	if err != nil {
		return ThreadPage{}, s.storeErr(ctx, "load message actions", err, "Actions not found")
	}

	return ThreadPage{
		Thread:    access.thread,
		Household: access.household,
		View: visibility.Resolve(visibility.Input{
			Messages:        messages,
			RequesterID:     userID,
			PartnerID:       access.partnerID,
			MyReceipts:      myReceipts,
			PartnerReceipts: partnerReceipts,
		}),
		Actions: actions,
	}, nil
}

// ReconcileReadReceipts marks ids read for userID. Safe to repeat.
func (s *Service) ReconcileReadReceipts(ctx context.Context, userID string, ids []string) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	changed, err := s.store.MarkRead(ctx, ids, userID)
	if err != nil {
		return 0, s.storeErr(ctx, "mark messages read", err, "Messages not found")
	}
	receiptsMarkedRead.Add(float64(changed))
	return changed, nil
}

// GetThreadMessages composes FetchThread with ReconcileReadReceipts when
// markRead is set. The view reflects the state before marking, so clients
// can still highlight what was new.
func (s *Service) GetThreadMessages(ctx context.Context, userID, threadID string, includeArchived, markRead bool) (map[string]any, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, validationError("thread_id is required", nil)
	}
	page, err := s.FetchThread(ctx, userID, threadID, includeArchived)
	if err != nil {
		return nil, err
	}

	marked := []string{}
	if markRead && len(page.View.UnreadIDs) > 0 {
		if _, err := s.ReconcileReadReceipts(ctx, userID, page.View.UnreadIDs); err != nil {
			return nil, err
		}
		marked = page.View.UnreadIDs
	}

	messages := make([]map[string]any, 0, len(page.View.Messages))
	for _, mv := range page.View.Messages {
		messages = append(messages, viewPayload(mv, userID))
	}
	actions := make([]map[string]any, 0, len(page.Actions))
	for _, a := range page.Actions {
		actions = append(actions, actionPayload(a))
	}

	var firstUnread any
	if page.View.FirstUnreadMessageID != nil {
		firstUnread = *page.View.FirstUnreadMessageID
	}

	return map[string]any{
		"messages":                messages,
		"message_actions":         actions,
		"thread_id":               page.Thread.ID,
		"household_id":            page.Household.ID,
		"current_user_id":         userID,
		"first_unread_message_id": firstUnread,
		"unread_count":            page.View.UnreadCount,
		"marked_as_read_ids":      marked,
	}, nil
}

type SendMessageInput struct {
	Content      string              `json:"content"`
	ThreadID     string              `json:"thread_id"`
	TopicID      *string             `json:"topic_id"`
	ItemQuantity decimal.NullDecimal `json:"item_quantity"`
}

func (s *Service) SendMessage(ctx context.Context, userID string, input SendMessageInput) (map[string]any, error) {
	content := strings.TrimSpace(input.Content)
	threadID := strings.TrimSpace(input.ThreadID)
	if threadID == "" {
		return nil, validationError("thread_id is required", nil)
	}
	if content == "" {
		return nil, validationError("content is required", nil)
	}
	if err := validateQuantity(input.ItemQuantity); err != nil {
		return nil, err
	}
	var topicID *string
	if input.TopicID != nil && strings.TrimSpace(*input.TopicID) != "" {
		trimmed := strings.TrimSpace(*input.TopicID)
		topicID = &trimmed
	}

	access, err := s.accessThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}

	message, err := s.store.InsertMessage(ctx, store.NewMessage{
		ThreadID:        access.thread.ID,
		HouseholdID:     access.thread.HouseholdID,
		SenderUserID:    userID,
		Content:         content,
		TopicID:         topicID,
		ItemQuantity:    input.ItemQuantity,
		RecipientUserID: access.partnerID,
	})
	if err != nil {
		return nil, s.storeErr(ctx, "send message", err, "Thread not found")
	}

	s.indexMessages(message)
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventMessageCreated,
		ThreadID:   message.ThreadID,
		ActorID:    userID,
		MessageIDs: []string{message.ID},
	})

	payload := messagePayload(message, userID)
	payload["status"] = string(store.ReceiptDelivered)
	payload["is_unread"] = false
	return map[string]any{"message": payload}, nil
}

// DeleteMessages soft-deletes the requester's own messages among ids.
// Messages sent by others are skipped; nothing deleted is NotFound.
func (s *Service) DeleteMessages(ctx context.Context, userID string, ids []string) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, validationError("messageIds must not be empty", nil)
	}
	deleted, err := s.store.SoftDeleteMessages(ctx, ids, userID)
	if err != nil {
		return 0, s.storeErr(ctx, "delete messages", err, "Messages not found")
	}
	if len(deleted) == 0 {
		return 0, notFoundError("No messages found to delete")
	}

	s.unindexMessages(deleted)
	s.publishByThread(ctx, realtime.EventMessagesDeleted, userID, deleted)
	return len(deleted), nil
}

// SearchMessages finds messages in a thread the requester can see.
// Hits are reloaded so deletes and hides made after indexing apply.
func (s *Service) SearchMessages(ctx context.Context, userID, threadID, text string, limit int) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if strings.TrimSpace(threadID) == "" {
		return nil, validationError("thread_id is required", nil)
	}
	if text == "" {
		return nil, validationError("q is required", nil)
	}
	if s.search == nil {
		return nil, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}

	access, err := s.accessThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}

	resp, err := s.search.Search(ctx, search.Query{
		Text:        text,
		ThreadID:    access.thread.ID,
		HouseholdID: access.thread.HouseholdID,
		RequesterID: userID,
		Limit:       limit,
	})
	if err != nil {
		return nil, s.storeErr(ctx, "search messages", err, "Messages not found")
	}

	ids := make([]string, 0, len(resp.Results))
	snippets := make(map[string]string, len(resp.Results))
	for _, hit := range resp.Results {
		ids = append(ids, hit.MessageID)
		snippets[hit.MessageID] = hit.Snippet
	}
	messages, err := s.store.GetMessages(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, s.storeErr(ctx, "load messages", err, "Messages not found")
	}
	byID := make(map[string]store.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}

	results := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok || m.ThreadID != access.thread.ID || m.DeletedAt != nil || m.IsHiddenFor(userID) {
			continue
		}
		item := messagePayload(m, userID)
		item["snippet"] = snippets[id]
		results = append(results, item)
	}

	return map[string]any{
		"results": results,
		"query":   text,
		"backend": resp.Backend,
	}, nil
}

func validateQuantity(quantity decimal.NullDecimal) error {
	if quantity.Valid && !quantity.Decimal.IsPositive() {
		return validationError("quantity must be greater than zero", map[string]any{"quantity": quantity.Decimal.String()})
	}
	return nil
}

func (s *Service) indexMessages(messages ...store.Message) {
	if s.search == nil || len(messages) == 0 {
		return
	}
	records := make([]search.MessageRecord, 0, len(messages))
	for _, m := range messages {
		records = append(records, search.RecordFor(m))
	}
	s.search.IndexMessages(records...)
}

func (s *Service) unindexMessages(messages []store.Message) {
	if s.search == nil || len(messages) == 0 {
		return
	}
	s.search.RemoveMessages(idsOf(messages)...)
}

// publish sends a live event. Failures never fail the request.
func (s *Service) publish(ctx context.Context, event realtime.Event) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "publish live event", "type", event.Type, "thread_id", event.ThreadID, "error", err)
	}
}

func (s *Service) publishByThread(ctx context.Context, eventType, actorID string, messages []store.Message) {
	byThread := make(map[string][]string)
	order := make([]string, 0)
	for _, m := range messages {
		if _, ok := byThread[m.ThreadID]; !ok {
			order = append(order, m.ThreadID)
		}
		byThread[m.ThreadID] = append(byThread[m.ThreadID], m.ID)
	}
	for _, threadID := range order {
		s.publish(ctx, realtime.Event{
			Type:       eventType,
			ThreadID:   threadID,
			ActorID:    actorID,
			MessageIDs: byThread[threadID],
		})
	}
}
