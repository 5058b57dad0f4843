package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// HouseholdLink pairs an owner with an optional partner. Its ID doubles as
// the household id referenced by threads and messages.
type HouseholdLink struct {
	ID            string
	OwnerUserID   string
	PartnerUserID string
	Active        bool
	CreatedAt     time.Time
}

// HasMember reports whether userID is the owner or partner of an active link.
func (h HouseholdLink) HasMember(userID string) bool {
	if !h.Active || userID == "" {
		return false
	}
	return h.OwnerUserID == userID || h.PartnerUserID == userID
}

// PartnerOf returns the other member of the link, or "" when there is none.
func (h HouseholdLink) PartnerOf(userID string) string {
	switch userID {
	case h.OwnerUserID:
		return h.PartnerUserID
	case h.PartnerUserID:
		return h.OwnerUserID
	default:
		return ""
	}
}

const (
	ThreadPurposeChat     = "chat"
	ThreadPurposeShopping = "shopping"
)

type Thread struct {
	ID            string
	HouseholdID   string
	Purpose       string
	Title         string
	CreatedAt     time.Time
	LastMessageAt *time.Time
}

// ThreadSummary is a thread as listed for one user.
type ThreadSummary struct {
	Thread
	UnreadCount int
}

// Message is a chat line that doubles as a shopping-list item. The checked,
// pinned, archived and deleted states are independent of each other.
type Message struct {
	ID             string
	ThreadID       string
	HouseholdID    string
	SenderUserID   string
	MessageType    string
	Content        string
	TopicID        *string
	ItemQuantity   decimal.NullDecimal
	ItemURL        *string
	CheckedAt      *time.Time
	CheckedBy      *string
	PinnedAt       *time.Time
	ArchivedAt     *time.Time
	ArchivedReason *string
	DeletedAt      *time.Time
	DeletedBy      *string
	HiddenFor      []string
	CreatedAt      time.Time
}

// IsHiddenFor reports whether userID has hidden the message from their view.
func (m Message) IsHiddenFor(userID string) bool {
	for _, id := range m.HiddenFor {
		if id == userID {
			return true
		}
	}
	return false
}

// NewMessage is the input for InsertMessage.
type NewMessage struct {
	ThreadID     string
	HouseholdID  string
	SenderUserID string
	Content      string
	TopicID      *string
	ItemQuantity decimal.NullDecimal
	// RecipientUserID receives a delivered receipt when set.
	RecipientUserID string
}

type ReceiptStatus string

const (
	ReceiptSent      ReceiptStatus = "sent"
	ReceiptDelivered ReceiptStatus = "delivered"
	ReceiptRead      ReceiptStatus = "read"
)

// Rank orders statuses sent < delivered < read; unknown values rank lowest.
func (s ReceiptStatus) Rank() int {
	switch s {
	case ReceiptSent:
		return 1
	case ReceiptDelivered:
		return 2
	case ReceiptRead:
		return 3
	default:
		return 0
	}
}

type MessageAction struct {
	ID          int64
	MessageID   string
	ThreadID    string
	ActorUserID string
	Action      string
	Payload     map[string]any
	CreatedAt   time.Time
}

// ActionRecord describes the log entry written alongside a message mutation.
type ActionRecord struct {
	Action  string
	ActorID string
	Payload map[string]any
}
