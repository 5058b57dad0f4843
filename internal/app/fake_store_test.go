package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hearth/api/internal/config"
	"hearth/api/internal/export"
	"hearth/api/internal/logging"
	"hearth/api/internal/realtime"
	"hearth/api/internal/search"
	"hearth/api/internal/store"
)

// memStore is an in-memory Store and SessionStore with the same lifecycle
// rules as the Postgres store.
type memStore struct {
	mu         sync.Mutex
	seq        int
	now        time.Time
	users      map[string]store.User
	households map[string]store.HouseholdLink
	threads    map[string]store.Thread
	messages   map[string]store.Message
	receipts   map[string]map[string]store.ReceiptStatus
	actions    []store.MessageAction
	refresh    map[string]string
	revoked    map[string]bool
	// failOn makes the named operation return an error.
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		now:        time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		users:      make(map[string]store.User),
		households: make(map[string]store.HouseholdLink),
		threads:    make(map[string]store.Thread),
		messages:   make(map[string]store.Message),
		receipts:   make(map[string]map[string]store.ReceiptStatus),
		refresh:    make(map[string]string),
		revoked:    make(map[string]bool),
		failOn:     make(map[string]error),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *memStore) fail(op string) error {
	return m.failOn[op]
}

func (m *memStore) Ping(context.Context) error { return m.fail("Ping") }

func (m *memStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = m.nextID("user")
	}
	user.CreatedAt = m.tick()
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) CountUsers(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memStore) CreateHouseholdLink(_ context.Context, ownerID, partnerID string) (store.HouseholdLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link := store.HouseholdLink{ID: m.nextID("hh"), OwnerUserID: ownerID, PartnerUserID: partnerID, Active: true, CreatedAt: m.tick()}
	m.households[link.ID] = link
	return link, nil
}

func (m *memStore) GetHouseholdLink(_ context.Context, id string) (store.HouseholdLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.households[id]
	if !ok {
		return store.HouseholdLink{}, store.ErrNotFound
	}
	return link, nil
}

func (m *memStore) ListActiveHouseholds(_ context.Context, userID string) ([]store.HouseholdLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	links := make([]store.HouseholdLink, 0)
	for _, link := range m.households {
		if link.HasMember(userID) {
			links = append(links, link)
		}
	}
	return links, nil
}

func (m *memStore) CreateThread(_ context.Context, thread store.Thread) (store.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread.ID = m.nextID("thread")
	thread.CreatedAt = m.tick()
	m.threads[thread.ID] = thread
	return thread, nil
}

func (m *memStore) GetThread(_ context.Context, id string) (store.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetThread"); err != nil {
		return store.Thread{}, err
	}
	thread, ok := m.threads[id]
	if !ok {
		return store.Thread{}, store.ErrNotFound
	}
	return thread, nil
}

func (m *memStore) ListThreadsForUser(_ context.Context, userID string) ([]store.ThreadSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.ThreadSummary, 0)
	for _, thread := range m.threads {
		if !m.households[thread.HouseholdID].HasMember(userID) {
			continue
		}
		unread := 0
		for _, msg := range m.messages {
			if msg.ThreadID != thread.ID || msg.DeletedAt != nil || msg.ArchivedAt != nil || msg.SenderUserID == userID {
				continue
			}
			if m.receipts[msg.ID][userID] != store.ReceiptRead {
				unread++
			}
		}
		items = append(items, store.ThreadSummary{Thread: thread, UnreadCount: unread})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *memStore) InsertMessage(_ context.Context, input store.NewMessage) (store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertMessage"); err != nil {
		return store.Message{}, err
	}
	msg := store.Message{
		ID:           m.nextID("msg"),
		ThreadID:     input.ThreadID,
		HouseholdID:  input.HouseholdID,
		SenderUserID: input.SenderUserID,
		MessageType:  "text",
		Content:      input.Content,
		TopicID:      input.TopicID,
		ItemQuantity: input.ItemQuantity,
		HiddenFor:    []string{},
		CreatedAt:    m.tick(),
	}
	m.messages[msg.ID] = msg
	thread := m.threads[msg.ThreadID]
	created := msg.CreatedAt
	thread.LastMessageAt = &created
	m.threads[msg.ThreadID] = thread
	if input.RecipientUserID != "" {
		m.setReceipt(msg.ID, input.RecipientUserID, store.ReceiptDelivered)
	}
	return msg, nil
}

func (m *memStore) setReceipt(messageID, userID string, status store.ReceiptStatus) bool {
	if m.receipts[messageID] == nil {
		m.receipts[messageID] = make(map[string]store.ReceiptStatus)
	}
	if m.receipts[messageID][userID].Rank() >= status.Rank() {
		return false
	}
	m.receipts[messageID][userID] = status
	return true
}

func (m *memStore) sorted(keep func(store.Message) bool) []store.Message {
	items := make([]store.Message, 0)
	for _, msg := range m.messages {
		if keep(msg) {
			items = append(items, cloneMessage(msg))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func cloneMessage(msg store.Message) store.Message {
	msg.HiddenFor = append([]string{}, msg.HiddenFor...)
	return msg
}

func (m *memStore) ListMessagesByThread(_ context.Context, threadID string, includeArchived bool) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListMessagesByThread"); err != nil {
		return nil, err
	}
	return m.sorted(func(msg store.Message) bool {
		return msg.ThreadID == threadID && msg.DeletedAt == nil && (includeArchived || msg.ArchivedAt == nil)
	}), nil
}

func (m *memStore) GetMessages(_ context.Context, ids []string) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := toSet(ids)
	return m.sorted(func(msg store.Message) bool {
		_, ok := wanted[msg.ID]
		return ok
	}), nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// mutate applies fn to every message matching keep and logs one action per
// changed row. An injected failure leaves every message untouched.
func (m *memStore) mutate(action, actorID string, payload map[string]any, keep func(store.Message) bool, fn func(*store.Message)) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(action); err != nil {
		return nil, err
	}
	updated := make([]store.Message, 0)
	for _, msg := range m.sorted(keep) {
		fn(&msg)
		m.messages[msg.ID] = msg
		updated = append(updated, cloneMessage(msg))
		m.actions = append(m.actions, store.MessageAction{
			ID:          int64(len(m.actions) + 1),
			MessageID:   msg.ID,
			ThreadID:    msg.ThreadID,
			ActorUserID: actorID,
			Action:      action,
			Payload:     payload,
			CreatedAt:   m.tick(),
		})
	}
	return updated, nil
}

func (m *memStore) mutateOne(action, actorID string, payload map[string]any, id string, fn func(*store.Message)) (store.Message, error) {
	updated, err := m.mutate(action, actorID, payload, byIDs([]string{id}), fn)
	if err != nil {
		return store.Message{}, err
	}
	if len(updated) == 0 {
		return store.Message{}, store.ErrNotFound
	}
	return updated[0], nil
}

func byIDs(ids []string) func(store.Message) bool {
	set := toSet(ids)
	return func(msg store.Message) bool {
		_, ok := set[msg.ID]
		return ok
	}
}

func (m *memStore) SoftDeleteMessages(_ context.Context, ids []string, actorID string) ([]store.Message, error) {
	keep := byIDs(ids)
	return m.mutate("delete", actorID, nil, func(msg store.Message) bool {
		return keep(msg) && msg.SenderUserID == actorID && msg.DeletedAt == nil
	}, func(msg *store.Message) {
		at := m.now
		by := actorID
		msg.DeletedAt, msg.DeletedBy = &at, &by
	})
}

func (m *memStore) RestoreMessages(_ context.Context, ids []string, actorID string) ([]store.Message, error) {
	return m.mutate("undo", actorID, nil, byIDs(ids), func(msg *store.Message) {
		msg.DeletedAt, msg.DeletedBy = nil, nil
	})
}

func (m *memStore) HideMessages(_ context.Context, ids []string, userID string) ([]store.Message, error) {
	return m.mutate("hide", userID, nil, byIDs(ids), func(msg *store.Message) {
		if !msg.IsHiddenFor(userID) {
			msg.HiddenFor = append(msg.HiddenFor, userID)
		}
	})
}

func (m *memStore) UnhideMessages(_ context.Context, ids []string, userID string) ([]store.Message, error) {
	return m.mutate("unhide", userID, nil, byIDs(ids), func(msg *store.Message) {
		kept := make([]string, 0, len(msg.HiddenFor))
		for _, id := range msg.HiddenFor {
			if id != userID {
				kept = append(kept, id)
			}
		}
		msg.HiddenFor = kept
	})
}

func (m *memStore) ToggleChecked(_ context.Context, id, actorID string) (store.Message, error) {
	return m.mutateOne("toggle_check", actorID, nil, id, func(msg *store.Message) {
		if msg.CheckedAt == nil {
			at := m.now
			by := actorID
			msg.CheckedAt, msg.CheckedBy = &at, &by
			return
		}
		msg.CheckedAt, msg.CheckedBy = nil, nil
	})
}

func (m *memStore) TogglePinned(_ context.Context, id, actorID string) (store.Message, error) {
	return m.mutateOne("toggle_pin", actorID, nil, id, func(msg *store.Message) {
		if msg.PinnedAt == nil {
			at := m.now
			msg.PinnedAt = &at
			return
		}
		msg.PinnedAt = nil
	})
}

func (m *memStore) SetItemQuantity(_ context.Context, id string, quantity decimal.NullDecimal, actorID string) (store.Message, error) {
	return m.mutateOne("set_quantity", actorID, nil, id, func(msg *store.Message) {
		msg.ItemQuantity = quantity
	})
}

func (m *memStore) SetItemURL(_ context.Context, id string, url *string, actorID string) (store.Message, error) {
	return m.mutateOne("set_item_url", actorID, nil, id, func(msg *store.Message) {
		msg.ItemURL = url
	})
}

func (m *memStore) UpdateContent(_ context.Context, id, content, actorID string) (store.Message, error) {
	return m.mutateOne("update_content", actorID, nil, id, func(msg *store.Message) {
		msg.Content = content
	})
}

func (m *memStore) ArchiveMessages(_ context.Context, ids []string, reason, actorID string) ([]store.Message, error) {
	keep := byIDs(ids)
	return m.mutate("archive", actorID, map[string]any{"reason": reason}, func(msg store.Message) bool {
		return keep(msg) && msg.ArchivedAt == nil
	}, func(msg *store.Message) {
		at := m.now
		r := reason
		msg.ArchivedAt, msg.ArchivedReason = &at, &r
	})
}

func (m *memStore) UnarchiveMessages(_ context.Context, ids []string, actorID string) ([]store.Message, error) {
	return m.mutate("unarchive", actorID, nil, byIDs(ids), func(msg *store.Message) {
		msg.ArchivedAt, msg.ArchivedReason = nil, nil
	})
}

func (m *memStore) ClearChecked(_ context.Context, threadID, reason, actorID string) ([]store.Message, error) {
	return m.mutate("clear_checked", actorID, map[string]any{"reason": reason}, func(msg store.Message) bool {
		return msg.ThreadID == threadID && msg.CheckedAt != nil && msg.ArchivedAt == nil
	}, func(msg *store.Message) {
		at := m.now
		r := reason
		msg.ArchivedAt, msg.ArchivedReason = &at, &r
	})
}

func (m *memStore) ListMessageActions(_ context.Context, ids []string) ([]store.MessageAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := toSet(ids)
	items := make([]store.MessageAction, 0)
	for _, action := range m.actions {
		if _, ok := set[action.MessageID]; ok {
			items = append(items, action)
		}
	}
	return items, nil
}

func (m *memStore) MarkRead(_ context.Context, ids []string, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("MarkRead"); err != nil {
		return 0, err
	}
	var changed int64
	for _, id := range ids {
		if m.setReceipt(id, userID, store.ReceiptRead) {
			changed++
		}
	}
	return changed, nil
}

func (m *memStore) ReceiptStatuses(_ context.Context, ids []string, userID string) (map[string]store.ReceiptStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make(map[string]store.ReceiptStatus)
	for _, id := range ids {
		if status, ok := m.receipts[id][userID]; ok {
			statuses[id] = status
		}
	}
	return statuses, nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = userID
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.refresh[tokenHash]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return store.User{ID: userID}, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

// message returns the stored row for assertions.
func (m *memStore) message(id string) store.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneMessage(m.messages[id])
}

func (m *memStore) receipt(messageID, userID string) store.ReceiptStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receipts[messageID][userID]
}

// fixture is a two-member household with one shopping thread, plus an
// outsider in a household of their own.
type fixture struct {
	store    *memStore
	svc      *Service
	events   *fakePublisher
	searcher *fakeSearcher
	owner    store.User
	partner  store.User
	outsider store.User
	house    store.HouseholdLink
	thread   store.Thread
	other    store.Thread
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		WriteRPS:   1000,
		WriteBurst: 1000,
	}
}

func newFixture() *fixture {
	ctx := context.Background()
	st := newMemStore()
	f := &fixture{store: st, events: &fakePublisher{}, searcher: &fakeSearcher{}}

	f.owner, _ = st.CreateUser(ctx, store.User{DisplayName: "Avery", Email: "avery@example.com"})
	f.partner, _ = st.CreateUser(ctx, store.User{DisplayName: "Blake", Email: "blake@example.com"})
	f.outsider, _ = st.CreateUser(ctx, store.User{DisplayName: "Casey", Email: "casey@example.com"})
	f.house, _ = st.CreateHouseholdLink(ctx, f.owner.ID, f.partner.ID)
	otherHouse, _ := st.CreateHouseholdLink(ctx, f.outsider.ID, "")
	f.thread, _ = st.CreateThread(ctx, store.Thread{HouseholdID: f.house.ID, Purpose: store.ThreadPurposeShopping, Title: "Groceries"})
	f.other, _ = st.CreateThread(ctx, store.Thread{HouseholdID: otherHouse.ID, Purpose: store.ThreadPurposeChat, Title: "Solo"})

	f.svc = New(testConfig(), st, logging.Discard(), WithEvents(f.events), WithSearch(f.searcher), WithExporter(&fakeExporter{}))
	return f
}

// send inserts a message directly, delivering it to the other member.
func (f *fixture) send(from store.User, content string) store.Message {
	to := f.house.PartnerOf(from.ID)
	msg, err := f.store.InsertMessage(context.Background(), store.NewMessage{
		ThreadID:        f.thread.ID,
		HouseholdID:     f.house.ID,
		SenderUserID:    from.ID,
		Content:         content,
		RecipientUserID: to,
	})
	if err != nil {
		panic(err)
	}
	return msg
}

type fakePublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event realtime.Event) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, event)
	return 1, nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

type fakeSearcher struct {
	mu       sync.Mutex
	indexed  []string
	removed  []string
	response search.Response
	err      error
	lastQ    search.Query
}

func (s *fakeSearcher) Search(_ context.Context, q search.Query) (search.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQ = q
	return s.response, s.err
}

func (s *fakeSearcher) IndexMessages(records ...search.MessageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		s.indexed = append(s.indexed, record.ID)
	}
}

func (s *fakeSearcher) RemoveMessages(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, ids...)
}

type fakeExporter struct {
	err  error
	list export.List
}

func (e *fakeExporter) Export(_ context.Context, list export.List, format export.Format) (*export.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.list = list
	return &export.Result{Data: []byte("<html>" + list.Title + "</html>"), Filename: "groceries." + string(format), MimeType: "text/html; charset=utf-8"}, nil
}
