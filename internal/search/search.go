package search

// Result is a single message hit. Callers reload the message before
// returning it so deletes and hides made after indexing still apply.
type Result struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	Snippet   string `json:"snippet"`
}

// Query describes a search request scoped to one thread.
type Query struct {
	Text        string
	ThreadID    string
	HouseholdID string
	RequesterID string
	Limit       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// MessageRecord is the data we index for a message.
type MessageRecord struct {
	ID           string `json:"id"`
	ThreadID     string `json:"thread_id"`
	HouseholdID  string `json:"household_id"`
	SenderUserID string `json:"sender_user_id"`
	Content      string `json:"content"`
	CreatedAt    int64  `json:"created_at"`
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
