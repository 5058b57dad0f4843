// Package visibility computes one user's view of a thread from stored
// messages and receipts. It performs no I/O.
package visibility

import "hearth/api/internal/store"

// MessageView is a message annotated for the requesting user.
type MessageView struct {
	store.Message
	IsMine       bool
	IsHiddenByMe bool
	// IsUnread is only ever true for messages sent by someone else.
	IsUnread bool
	// Status is the partner's receipt for my messages (delivered when absent)
	// and my own receipt for theirs (sent when absent).
	Status store.ReceiptStatus
}

// ThreadView is the resolved view of a thread page.
type ThreadView struct {
	Messages             []MessageView
	FirstUnreadMessageID *string
	UnreadCount          int
	// UnreadIDs lists unread messages from others in display order.
	UnreadIDs []string
}

// Input gathers everything Resolve needs.
type Input struct {
	Messages    []store.Message
	RequesterID string
	PartnerID   string
	// MyReceipts are the requester's receipts for messages sent by others.
	MyReceipts map[string]store.ReceiptStatus
	// PartnerReceipts are the partner's receipts for the requester's messages.
	PartnerReceipts map[string]store.ReceiptStatus
}

// Resolve annotates every message without filtering any out. Hidden
// messages stay in the result so clients can offer to unhide them.
func Resolve(in Input) ThreadView {
	view := ThreadView{
		Messages:  make([]MessageView, 0, len(in.Messages)),
		UnreadIDs: make([]string, 0),
	}

	var firstUnread *store.Message
	for i := range in.Messages {
		m := in.Messages[i]
		mv := MessageView{
			Message:      m,
			IsMine:       m.SenderUserID == in.RequesterID,
			IsHiddenByMe: m.IsHiddenFor(in.RequesterID),
		}

		if mv.IsMine {
			mv.Status = store.ReceiptDelivered
			if status, ok := in.PartnerReceipts[m.ID]; ok && in.PartnerID != "" {
				mv.Status = status
			}
		} else {
			mv.Status = store.ReceiptSent
			if status, ok := in.MyReceipts[m.ID]; ok {
				mv.Status = status
			}
			mv.IsUnread = mv.Status != store.ReceiptRead
		}

		if mv.IsUnread {
			view.UnreadCount++
			view.UnreadIDs = append(view.UnreadIDs, m.ID)
			if firstUnread == nil || earlier(m, *firstUnread) {
				firstUnread = &in.Messages[i]
			}
		}
		view.Messages = append(view.Messages, mv)
	}

	if firstUnread != nil {
		id := firstUnread.ID
		view.FirstUnreadMessageID = &id
	}
	return view
}

// Partition splits a view into the requester's messages and everyone else's.
func Partition(messages []MessageView) (mine, theirs []MessageView) {
	mine = make([]MessageView, 0)
	theirs = make([]MessageView, 0)
	for _, m := range messages {
		if m.IsMine {
			mine = append(mine, m)
		} else {
			theirs = append(theirs, m)
		}
	}
	return mine, theirs
}

// SplitIDs returns the ids of messages sent by userID and by anyone else.
func SplitIDs(messages []store.Message, userID string) (mine, theirs []string) {
	mine = make([]string, 0)
	theirs = make([]string, 0)
	for _, m := range messages {
		if m.SenderUserID == userID {
			mine = append(mine, m.ID)
		} else {
			theirs = append(theirs, m.ID)
		}
	}
	return mine, theirs
}

func earlier(a, b store.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
