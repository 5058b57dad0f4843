package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"hearth/api/internal/export"
	"hearth/api/internal/store"
)

func threadPayload(t store.Thread) map[string]any {
	var last any
	if t.LastMessageAt != nil {
		last = t.LastMessageAt.UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		"id":              t.ID,
		"household_id":    t.HouseholdID,
		"purpose":         t.Purpose,
		"title":           t.Title,
		"created_at":      t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"last_message_at": last,
	}
}

func (s *Service) ListThreads(ctx context.Context, userID string) (map[string]any, error) {
	summaries, err := s.store.ListThreadsForUser(ctx, userID)
	if err != nil {
		return nil, s.storeErr(ctx, "list threads", err, "Threads not found")
	}
	items := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		item := threadPayload(summary.Thread)
		item["unread_count"] = summary.UnreadCount
		items = append(items, item)
	}
	return map[string]any{"threads": items}, nil
}

type CreateThreadInput struct {
	HouseholdID string `json:"household_id"`
	Purpose     string `json:"purpose"`
	Title       string `json:"title"`
}

// CreateThread opens a thread in one of the requester's households. The
// household may be omitted when the requester belongs to exactly one.
func (s *Service) CreateThread(ctx context.Context, userID string, input CreateThreadInput) (map[string]any, error) {
	purpose := strings.ToLower(strings.TrimSpace(input.Purpose))
	if purpose == "" {
		purpose = store.ThreadPurposeChat
	}
	if purpose != store.ThreadPurposeChat && purpose != store.ThreadPurposeShopping {
		return nil, validationError("purpose must be chat or shopping", map[string]any{"purpose": input.Purpose})
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required", nil)
	}

	householdID := strings.TrimSpace(input.HouseholdID)
	if householdID == "" {
		households, err := s.store.ListActiveHouseholds(ctx, userID)
		if err != nil {
			return nil, s.storeErr(ctx, "list households", err, "Household not found")
		}
		if len(households) != 1 {
			return nil, validationError("household_id is required", map[string]any{"households": len(households)})
		}
		householdID = households[0].ID
	}

	isMember, err := s.membershipFor(userID).isMember(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, authorizationError("You are not a member of this household")
	}

	thread, err := s.store.CreateThread(ctx, store.Thread{HouseholdID: householdID, Purpose: purpose, Title: title})
	if err != nil {
		return nil, s.storeErr(ctx, "create thread", err, "Household not found")
	}
	return map[string]any{"thread": threadPayload(thread)}, nil
}

// ExportThread renders the thread's live items as a shopping list.
func (s *Service) ExportThread(ctx context.Context, userID, threadID, format string) (*export.Result, error) {
	exportFormat, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(format)))
	if err != nil {
		return nil, validationError("format must be html or pdf", map[string]any{"format": format})
	}
	access, err := s.accessThread(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessagesByThread(ctx, threadID, false)
	if err != nil {
		return nil, s.storeErr(ctx, "load messages", err, "Thread not found")
	}

	names := make(map[string]string, 2)
	for _, id := range []string{access.household.OwnerUserID, access.household.PartnerUserID} {
		if id == "" {
			continue
		}
		user, err := s.store.GetUserByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, s.storeErr(ctx, "load user", err, "User not found")
		}
		names[id] = user.DisplayName
	}

	list := export.BuildList(access.thread, messages, userID, names)
	result, err := s.exporter.Export(ctx, list, exportFormat)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, exportUnavailableError(err)
		}
		s.logger.ErrorContext(ctx, "export failed", "thread_id", threadID, "format", exportFormat, "error", err)
		return nil, domainError(http.StatusInternalServerError, codeServer, "Export failed", nil)
	}
	return result, nil
}
