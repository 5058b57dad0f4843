package visibility

import (
	"testing"
	"time"

	"hearth/api/internal/store"
)

var base = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func msg(id, sender string, minute int, hiddenFor ...string) store.Message {
	return store.Message{
		ID:           id,
		ThreadID:     "thread-1",
		SenderUserID: sender,
		Content:      "item " + id,
		HiddenFor:    hiddenFor,
		CreatedAt:    base.Add(time.Duration(minute) * time.Minute),
	}
}

func TestResolveEmptyThread(t *testing.T) {
	view := Resolve(Input{RequesterID: "a", PartnerID: "b"})
	if len(view.Messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(view.Messages))
	}
	if view.UnreadCount != 0 {
		t.Fatalf("expected unread_count 0, got %d", view.UnreadCount)
	}
	if view.FirstUnreadMessageID != nil {
		t.Fatalf("expected nil first unread, got %q", *view.FirstUnreadMessageID)
	}
	if view.UnreadIDs == nil {
		t.Fatal("expected empty, non-nil unread ids")
	}
}

func TestResolveUnreadMatchesReceiptStatus(t *testing.T) {
	messages := []store.Message{
		msg("m1", "b", 1),
		msg("m2", "b", 2),
		msg("m3", "b", 3),
		msg("m4", "a", 4),
	}
	receipts := map[string]store.ReceiptStatus{
		"m1": store.ReceiptRead,
		"m2": store.ReceiptDelivered,
	}

	view := Resolve(Input{Messages: messages, RequesterID: "a", PartnerID: "b", MyReceipts: receipts})

	for _, mv := range view.Messages {
		if mv.IsMine {
			if mv.IsUnread {
				t.Fatalf("own message %s must never be unread", mv.ID)
			}
			continue
		}
		want := receipts[mv.ID] != store.ReceiptRead
		if mv.IsUnread != want {
			t.Fatalf("message %s: is_unread=%v, want %v", mv.ID, mv.IsUnread, want)
		}
	}
	if view.UnreadCount != 2 {
		t.Fatalf("expected 2 unread, got %d", view.UnreadCount)
	}
	if view.FirstUnreadMessageID == nil || *view.FirstUnreadMessageID != "m2" {
		t.Fatalf("expected first unread m2, got %v", view.FirstUnreadMessageID)
	}
	if len(view.UnreadIDs) != 2 || view.UnreadIDs[0] != "m2" || view.UnreadIDs[1] != "m3" {
		t.Fatalf("unexpected unread ids %v", view.UnreadIDs)
	}
}

func TestResolveFirstUnreadUsesCreatedAt(t *testing.T) {
	// out of order on purpose
	messages := []store.Message{msg("late", "b", 10), msg("early", "b", 1)}
	view := Resolve(Input{Messages: messages, RequesterID: "a", PartnerID: "b"})
	if view.FirstUnreadMessageID == nil || *view.FirstUnreadMessageID != "early" {
		t.Fatalf("expected first unread early, got %v", view.FirstUnreadMessageID)
	}
}

func TestResolveHiddenMessagesAreAnnotatedNotFiltered(t *testing.T) {
	messages := []store.Message{msg("m1", "b", 1, "a"), msg("m2", "b", 2, "b")}
	view := Resolve(Input{Messages: messages, RequesterID: "a", PartnerID: "b"})

	if len(view.Messages) != 2 {
		t.Fatalf("expected both messages returned, got %d", len(view.Messages))
	}
	if !view.Messages[0].IsHiddenByMe {
		t.Fatal("expected m1 hidden by requester")
	}
	if view.Messages[1].IsHiddenByMe {
		t.Fatal("m2 is hidden by the partner only")
	}
}

func TestResolveMyStatusDefaultsToDelivered(t *testing.T) {
	messages := []store.Message{msg("m1", "a", 1), msg("m2", "a", 2)}
	view := Resolve(Input{
		Messages:        messages,
		RequesterID:     "a",
		PartnerID:       "b",
		PartnerReceipts: map[string]store.ReceiptStatus{"m2": store.ReceiptRead},
	})

	if got := view.Messages[0].Status; got != store.ReceiptDelivered {
		t.Fatalf("expected delivered default, got %s", got)
	}
	if got := view.Messages[1].Status; got != store.ReceiptRead {
		t.Fatalf("expected partner read status, got %s", got)
	}
}

func TestResolveWithoutPartner(t *testing.T) {
	view := Resolve(Input{
		Messages:        []store.Message{msg("m1", "a", 1)},
		RequesterID:     "a",
		PartnerReceipts: map[string]store.ReceiptStatus{"m1": store.ReceiptRead},
	})
	if got := view.Messages[0].Status; got != store.ReceiptDelivered {
		t.Fatalf("expected delivered without a partner, got %s", got)
	}
}

func TestPartitionAndSplitIDs(t *testing.T) {
	messages := []store.Message{msg("m1", "a", 1), msg("m2", "b", 2), msg("m3", "a", 3)}

	mineIDs, theirIDs := SplitIDs(messages, "a")
	if len(mineIDs) != 2 || len(theirIDs) != 1 || theirIDs[0] != "m2" {
		t.Fatalf("unexpected split: mine=%v theirs=%v", mineIDs, theirIDs)
	}

	mine, theirs := Partition(Resolve(Input{Messages: messages, RequesterID: "a"}).Messages)
	if len(mine) != 2 || len(theirs) != 1 {
		t.Fatalf("unexpected partition: mine=%d theirs=%d", len(mine), len(theirs))
	}
}
