package app

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"hearth/api/internal/rbac"
	"hearth/api/internal/realtime"
	"hearth/api/internal/store"
)

const (
	defaultArchiveReason = "manual"
	clearCheckedReason   = "shopping_cleared"
)

// ActionInput is the PATCH /messages body.
type ActionInput struct {
	Action     string              `json:"action"`
	MessageID  string              `json:"message_id"`
	MessageIDs []string            `json:"message_ids"`
	ThreadID   string              `json:"thread_id"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	URL        *string             `json:"url"`
	Content    *string             `json:"content"`
	Reason     string              `json:"reason"`
}

// DispatchAction applies one named mutation. Every target is loaded and
// authorized before anything is written, and the write itself is a single
// transaction, so a batch lands entirely or not at all.
func (s *Service) DispatchAction(ctx context.Context, userID string, input ActionInput) (result map[string]any, err error) {
	name := strings.TrimSpace(input.Action)
	action, policy, ok := rbac.PolicyFor(name)
	if !ok {
		return nil, validationError("Unknown action", map[string]any{"action": name, "allowed": allowedActions()})
	}
	defer func() {
		messageActionsTotal.WithLabelValues(string(action), outcomeOf(err)).Inc()
	}()

	if policy.Target == rbac.TargetThread {
		return s.clearChecked(ctx, userID, input.ThreadID)
	}

	ids, err := targetIDs(policy.Target, input)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTargets(ctx, userID, ids, policy.Rule); err != nil {
		return nil, err
	}

	switch action {
	case rbac.ActionHide:
		updated, err := s.store.HideMessages(ctx, ids, userID)
		if err != nil {
			return nil, s.storeErr(ctx, "hide messages", err, "Messages not found")
		}
		return batchResult(updated, userID), nil

	case rbac.ActionUnhide:
		updated, err := s.store.UnhideMessages(ctx, ids, userID)
		if err != nil {
			return nil, s.storeErr(ctx, "unhide messages", err, "Messages not found")
		}
		return batchResult(updated, userID), nil

	case rbac.ActionUndo:
		restored, err := s.store.RestoreMessages(ctx, ids, userID)
		if err != nil {
			return nil, s.storeErr(ctx, "restore messages", err, "Messages not found")
		}
		s.indexMessages(restored...)
		return batchResult(restored, userID), nil

	case rbac.ActionToggleCheck:
		updated, err := s.store.ToggleChecked(ctx, ids[0], userID)
		if err != nil {
			return nil, s.storeErr(ctx, "toggle checked", err, "Message not found")
		}
		checked := updated.CheckedAt != nil
		s.publish(ctx, realtime.Event{
			Type:       realtime.EventMessageChecked,
			ThreadID:   updated.ThreadID,
			ActorID:    userID,
			MessageIDs: []string{updated.ID},
			Checked:    &checked,
		})
		return singleResult(updated, userID), nil

	case rbac.ActionTogglePin:
		updated, err := s.store.TogglePinned(ctx, ids[0], userID)
		if err != nil {
			return nil, s.storeErr(ctx, "toggle pinned", err, "Message not found")
		}
		return singleResult(updated, userID), nil

	case rbac.ActionSetQuantity:
		if err := validateQuantity(input.Quantity); err != nil {
			return nil, err
		}
		updated, err := s.store.SetItemQuantity(ctx, ids[0], input.Quantity, userID)
		if err != nil {
			return nil, s.storeErr(ctx, "set quantity", err, "Message not found")
		}
		return singleResult(updated, userID), nil

	case rbac.ActionSetItemURL:
		link, err := normalizeItemURL(input.URL)
		if err != nil {
			return nil, err
		}
		updated, err := s.store.SetItemURL(ctx, ids[0], link, userID)
		if err != nil {
			return nil, s.storeErr(ctx, "set item url", err, "Message not found")
		}
		return singleResult(updated, userID), nil

	case rbac.ActionUpdateContent:
		if input.Content == nil || strings.TrimSpace(*input.Content) == "" {
			return nil, validationError("content is required", nil)
		}
		updated, err := s.store.UpdateContent(ctx, ids[0], strings.TrimSpace(*input.Content), userID)
		if err != nil {
			return nil, s.storeErr(ctx, "update content", err, "Message not found")
		}
		if updated.DeletedAt == nil {
			s.indexMessages(updated)
		}
		return singleResult(updated, userID), nil

	case rbac.ActionArchive:
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			reason = defaultArchiveReason
		}
		archived, err := s.store.ArchiveMessages(ctx, ids, reason, userID)
		if err != nil {
			return nil, s.storeErr(ctx, "archive messages", err, "Messages not found")
		}
		return batchResult(archived, userID), nil

	case rbac.ActionUnarchive:
		restored, err := s.store.UnarchiveMessages(ctx, ids, userID)
		if err != nil {
			return nil, s.storeErr(ctx, "unarchive messages", err, "Messages not found")
		}
		return batchResult(restored, userID), nil
	}

	return nil, validationError("Unknown action", map[string]any{"action": name})
}

func (s *Service) clearChecked(ctx context.Context, userID, threadID string) (map[string]any, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, validationError("thread_id is required", nil)
	}
	if _, err := s.accessThread(ctx, threadID, userID); err != nil {
		return nil, err
	}
	archived, err := s.store.ClearChecked(ctx, threadID, clearCheckedReason, userID)
	if err != nil {
		return nil, s.storeErr(ctx, "clear checked items", err, "Thread not found")
	}
	return map[string]any{
		"success":        true,
		"thread_id":      threadID,
		"archived_count": len(archived),
		"message_ids":    idsOf(archived),
	}, nil
}

// targetIDs picks the identifiers an action's target shape allows.
func targetIDs(target rbac.Target, input ActionInput) ([]string, error) {
	single := strings.TrimSpace(input.MessageID)
	many := uniqueIDs(input.MessageIDs)

	switch target {
	case rbac.TargetOne:
		if single == "" {
			return nil, validationError("message_id is required", nil)
		}
		return []string{single}, nil
	case rbac.TargetMany:
		if len(many) == 0 {
			return nil, validationError("message_ids must not be empty", nil)
		}
		return many, nil
	case rbac.TargetOneOrMany:
		if len(many) > 0 {
			return many, nil
		}
		if single != "" {
			return []string{single}, nil
		}
		return nil, validationError("message_id or message_ids is required", nil)
	default:
		return nil, validationError("Unsupported action target", nil)
	}
}

// authorizeTargets loads every id and checks rule against each message's
// household. Any missing id or failed check rejects the whole batch.
func (s *Service) authorizeTargets(ctx context.Context, userID string, ids []string, rule rbac.Rule) error {
	messages, err := s.store.GetMessages(ctx, ids)
	if err != nil {
		return s.storeErr(ctx, "load messages", err, "Messages not found")
	}
	if len(messages) != len(ids) {
		found := make(map[string]struct{}, len(messages))
		for _, m := range messages {
			found[m.ID] = struct{}{}
		}
		missing := make([]string, 0)
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				missing = append(missing, id)
			}
		}
		notFound := notFoundError("Message not found")
		notFound.Details = map[string]any{"missing_ids": missing}
		return notFound
	}

	members := s.membershipFor(userID)
	for _, m := range messages {
		isMember, err := members.isMember(ctx, m.HouseholdID)
		if err != nil {
			return err
		}
		if !rbac.Can(rule, isMember, m.SenderUserID == userID) {
			if rule == rbac.RuleSender && isMember {
				return authorizationError("Only the sender can do this")
			}
			return authorizationError("You are not a member of this household")
		}
	}
	return nil
}

// normalizeItemURL trims raw and accepts absolute http(s) URLs. Empty or
// null clears the link.
func normalizeItemURL(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, validationError("url must be an absolute http or https URL", map[string]any{"url": trimmed})
	}
	return &trimmed, nil
}

func singleResult(m store.Message, userID string) map[string]any {
	return map[string]any{
		"success": true,
		"message": messagePayload(m, userID),
	}
}

func batchResult(messages []store.Message, userID string) map[string]any {
	return map[string]any{
		"success":        true,
		"affected_count": len(messages),
		"message_ids":    idsOf(messages),
		"messages":       messagesPayload(messages, userID),
	}
}

func allowedActions() []string {
	actions := rbac.Actions()
	names := make([]string, 0, len(actions))
	for _, action := range actions {
		names = append(names, string(action))
	}
	sort.Strings(names)
	return names
}
