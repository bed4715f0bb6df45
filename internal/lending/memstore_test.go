package lending

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/hitoshi/bradspelsmeny/internal/model"
	"github.com/hitoshi/bradspelsmeny/internal/repository"
)

// --- トランザクション付きインメモリストア ---

type memState struct {
	games    map[int64]model.Game
	users    map[int64]model.User
	history  []model.GameHistoryEntry
	orders   map[int64]model.GameOrder
	sessions []model.PartySession
	nextID   int64
}

func (s *memState) clone() *memState {
	c := &memState{
		games:    make(map[int64]model.Game, len(s.games)),
		users:    make(map[int64]model.User, len(s.users)),
		history:  append([]model.GameHistoryEntry(nil), s.history...),
		orders:   make(map[int64]model.GameOrder, len(s.orders)),
		sessions: append([]model.PartySession(nil), s.sessions...),
		nextID:   s.nextID,
	}
	for k, v := range s.games {
		c.games[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

type memStore struct {
	state *memState

	// failInsertHistory が設定されている場合、InsertHistory はこのエラーを返す
	failInsertHistory error
	// missPhoneLookup が true の場合、FindUserByPhone は常に見つからない（並行作成の再現）
	missPhoneLookup   bool
	commits           int
	rollbacks         int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		games:  map[int64]model.Game{},
		users:  map[int64]model.User{},
		orders: map[int64]model.GameOrder{},
		nextID: 100,
	}}
}

func (m *memStore) addGame(id int64) {
	m.state.games[id] = model.Game{ID: id, TitleSV: "Spel", TitleEN: "Game"}
}

func (m *memStore) addUser(id int64, phone string) {
	m.state.users[id] = model.User{ID: id, FirstName: "Ann", LastName: "Li", Phone: phone, Role: model.RoleUser}
}

func (m *memStore) historyFor(gameID int64) []model.GameHistoryEntry {
	var out []model.GameHistoryEntry
	for _, h := range m.state.history {
		if h.GameID == gameID {
			out = append(out, h)
		}
	}
	return out
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx repository.LendingTx) error) error {
	snapshot := m.state.clone()
	if err := fn(&memTx{store: m}); err != nil {
		m.state = snapshot
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) FindGameForUpdate(ctx context.Context, gameID int64) (*model.Game, error) {
	g, ok := t.store.state.games[gameID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (t *memTx) FindUserByID(ctx context.Context, userID int64) (*model.User, error) {
	u, ok := t.store.state.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (t *memTx) FindUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	if t.store.missPhoneLookup {
		return nil, nil
	}
	for _, u := range t.store.state.users {
		if u.Phone == phone {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateGuestUser(ctx context.Context, user *model.User) (bool, error) {
	for _, u := range t.store.state.users {
		if u.Phone != "" && u.Phone == user.Phone {
			user.ID = u.ID
			return false, nil
		}
	}
	user.ID = t.store.state.id()
	t.store.state.users[user.ID] = *user
	return true, nil
}

func (t *memTx) CountLendsByUser(ctx context.Context, userID int64) (int, error) {
	n := 0
	for _, h := range t.store.state.history {
		if h.Action == model.HistoryActionLend && h.UserID != nil && *h.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) MarkGameLent(ctx context.Context, gameID int64, at time.Time) error {
	g := t.store.state.games[gameID]
	g.LentOut = true
	g.TimesLent++
	g.LastLent = &at
	t.store.state.games[gameID] = g
	return nil
}

func (t *memTx) MarkGameReturned(ctx context.Context, gameID int64) error {
	g := t.store.state.games[gameID]
	g.LentOut = false
	t.store.state.games[gameID] = g
	return nil
}

func (t *memTx) InsertHistory(ctx context.Context, entry *model.GameHistoryEntry) error {
	if t.store.failInsertHistory != nil {
		return t.store.failInsertHistory
	}
	if entry.Action != model.HistoryActionLend && entry.Action != model.HistoryActionReturn {
		return errors.New("check constraint violation")
	}
	entry.ID = t.store.state.id()
	t.store.state.history = append(t.store.state.history, *entry)
	return nil
}

func (t *memTx) CloseOpenPartySessions(ctx context.Context, gameID int64, returnedBy *int64, notes string, at time.Time) (int64, error) {
	var n int64
	for i, ps := range t.store.state.sessions {
		if ps.GameID == gameID && ps.ReturnedAt == nil {
			ts := at
			t.store.state.sessions[i].ReturnedAt = &ts
			t.store.state.sessions[i].ReturnedByUserID = returnedBy
			t.store.state.sessions[i].ReturnNotes = notes
			n++
		}
	}
	return n, nil
}

func (t *memTx) FindOrderForUpdate(ctx context.Context, orderID int64) (*model.GameOrder, error) {
	o, ok := t.store.state.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (t *memTx) DeleteOrder(ctx context.Context, orderID int64) error {
	delete(t.store.state.orders, orderID)
	return nil
}

// memGameRepo と memOrderRepo は memStore の状態をトランザクション外から参照する。

type memGameRepo struct {
	store *memStore
}

func (r *memGameRepo) FindByID(ctx context.Context, id int64) (*model.Game, error) {
	g, ok := r.store.state.games[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (r *memGameRepo) List(ctx context.Context, filter model.GameFilter) ([]*model.Game, error) {
	return nil, nil
}

func (r *memGameRepo) ListHistory(ctx context.Context, gameID int64) ([]*model.GameHistoryEntry, error) {
	return nil, nil
}

func (r *memGameRepo) BulkInsert(ctx context.Context, games []*model.Game) error {
	for _, g := range games {
		g.ID = r.store.state.id()
		r.store.state.games[g.ID] = *g
	}
	return nil
}

type memOrderRepo struct {
	store *memStore
}

func (r *memOrderRepo) Create(ctx context.Context, order *model.GameOrder) error {
	order.ID = r.store.state.id()
	r.store.state.orders[order.ID] = *order
	return nil
}

func (r *memOrderRepo) List(ctx context.Context) ([]*model.GameOrder, error) {
	out := make([]*model.GameOrder, 0, len(r.store.state.orders))
	for _, o := range r.store.state.orders {
		o := o
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memOrderRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := r.store.state.orders[id]; !ok {
		return false, nil
	}
	delete(r.store.state.orders, id)
	return true, nil
}

// --- バッジ・メトリクスのモック ---

type mockBadgeAwarder struct {
	awarded map[int64]int
	calls   int
	err     error
}

func (m *mockBadgeAwarder) AwardFirstBorrow(ctx context.Context, userID int64) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	if m.awarded == nil {
		m.awarded = map[int64]int{}
	}
	m.awarded[userID]++
	return nil
}

type mockMetrics struct {
	lends, returns, placed, completed int
}

func (m *mockMetrics) RecordLend()           { m.lends++ }
func (m *mockMetrics) RecordReturn()         { m.returns++ }
func (m *mockMetrics) RecordOrderPlaced()    { m.placed++ }
func (m *mockMetrics) RecordOrderCompleted() { m.completed++ }

var (
	_ repository.LendingStore    = (*memStore)(nil)
	_ repository.GameRepository  = (*memGameRepo)(nil)
	_ repository.OrderRepository = (*memOrderRepo)(nil)
)
