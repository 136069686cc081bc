package game

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"cafe/internal/money"
)

// MemoryStore is an in-memory implementation of Store for testing. Units of
// work run one at a time against a copy of the state that replaces it on
// success, which gives the same all-or-nothing outcome as a database
// transaction.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memState
	faults map[string]error
}

type memState struct {
	nextUser    int64
	nextProduct int64
	nextOrder   int64
	nextLog     int64

	users    map[int64]User
	products map[int64]Product
	stock    map[[2]int64]int64
	orders   map[int64]Order
	logs     []LogEntry
	progress map[int64]Progress
	idem     map[string]string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			users:    make(map[int64]User),
			products: make(map[int64]Product),
			stock:    make(map[[2]int64]int64),
			orders:   make(map[int64]Order),
			progress: make(map[int64]Progress),
			idem:     make(map[string]string),
		},
		faults: make(map[string]error),
	}
}

// InjectFault makes the next call to the named Tx method fail with err.
func (s *MemoryStore) InjectFault(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = err
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&memTx{st: work, store: s}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Snapshot helpers for assertions.

func (s *MemoryStore) Balance(userID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.users[userID].Balance
}

func (s *MemoryStore) StockOf(userID, productID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.stock[[2]int64{userID, productID}]
}

func (s *MemoryStore) OrderStatus(orderID int64) OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.orders[orderID].Status
}

func (s *MemoryStore) ProgressOf(userID int64) (Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.progress[userID]
	return p, ok
}

func (s *MemoryStore) Logs(userID int64) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LogEntry
	for _, e := range s.state.logs {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (st *memState) clone() *memState {
	c := *st
	c.users = make(map[int64]User, len(st.users))
	for k, v := range st.users {
		c.users[k] = v
	}
	c.products = make(map[int64]Product, len(st.products))
	for k, v := range st.products {
		c.products[k] = v
	}
	c.stock = make(map[[2]int64]int64, len(st.stock))
	for k, v := range st.stock {
		c.stock[k] = v
	}
	c.orders = make(map[int64]Order, len(st.orders))
	for k, v := range st.orders {
		v.Lines = append([]OrderLine(nil), v.Lines...)
		c.orders[k] = v
	}
	c.logs = append([]LogEntry(nil), st.logs...)
	c.progress = make(map[int64]Progress, len(st.progress))
	for k, v := range st.progress {
		c.progress[k] = v
	}
	c.idem = make(map[string]string, len(st.idem))
	for k, v := range st.idem {
		c.idem[k] = v
	}
	return &c
}

type memTx struct {
	st    *memState
	store *MemoryStore
}

// fault is read under the store lock held by InTx.
func (t *memTx) fault(method string) error {
	if err, ok := t.store.faults[method]; ok {
		delete(t.store.faults, method)
		return err
	}
	return nil
}

func (t *memTx) ClaimIdempotency(_ context.Context, userID int64, key, action string) error {
	k := fmt.Sprintf("%d|%s", userID, key)
	if _, ok := t.st.idem[k]; ok {
		return ErrDuplicateIdempotency
	}
	t.st.idem[k] = action
	return nil
}

func (t *memTx) CreateUser(_ context.Context, u User) (User, error) {
	if err := t.fault("CreateUser"); err != nil {
		return User{}, err
	}
	for _, existing := range t.st.users {
		if existing.Subject == u.Subject || strings.EqualFold(existing.Username, u.Username) {
			return User{}, ErrUsernameTaken
		}
	}
	t.st.nextUser++
	u.ID = t.st.nextUser
	t.st.users[u.ID] = u
	return u, nil
}

func (t *memTx) UserBySubject(_ context.Context, subject string) (User, error) {
	for _, u := range t.st.users {
		if u.Subject == subject {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (t *memTx) UserByUsername(_ context.Context, username string) (User, error) {
	for _, u := range t.st.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (t *memTx) User(_ context.Context, userID int64) (User, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (t *memTx) LockUser(ctx context.Context, userID int64) (User, error) {
	return t.User(ctx, userID)
}

func (t *memTx) Users(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(t.st.users))
	for _, u := range t.st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) SetBalance(_ context.Context, userID int64, balance decimal.Decimal) error {
	if err := t.fault("SetBalance"); err != nil {
		return err
	}
	u, ok := t.st.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if balance.IsNegative() {
		return money.ErrInsufficientBalance
	}
	u.Balance = money.Round(balance)
	t.st.users[userID] = u
	return nil
}

func (t *memTx) SetAdmin(_ context.Context, userID int64, admin bool) error {
	u, ok := t.st.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.IsAdmin = admin
	t.st.users[userID] = u
	return nil
}

func (t *memTx) Product(_ context.Context, productID int64) (Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (t *memTx) Products(_ context.Context) ([]Product, error) {
	out := make([]Product, 0, len(t.st.products))
	for _, p := range t.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateProduct(_ context.Context, p Product) (Product, error) {
	for _, existing := range t.st.products {
		if strings.EqualFold(existing.Name, p.Name) {
			return Product{}, ErrDuplicateProduct
		}
	}
	t.st.nextProduct++
	p.ID = t.st.nextProduct
	t.st.products[p.ID] = p
	return p, nil
}

func (t *memTx) LockStock(_ context.Context, userID, productID int64) (int64, error) {
	return t.st.stock[[2]int64{userID, productID}], nil
}

func (t *memTx) AddStock(_ context.Context, userID, productID, qty int64) (int64, error) {
	if err := t.fault("AddStock"); err != nil {
		return 0, err
	}
	k := [2]int64{userID, productID}
	next, err := money.AddUnits(t.st.stock[k], qty)
	if err != nil {
		return 0, err
	}
	t.st.stock[k] = next
	return next, nil
}

func (t *memTx) RemoveStock(_ context.Context, userID, productID, qty int64) (int64, error) {
	if err := t.fault("RemoveStock"); err != nil {
		return 0, err
	}
	k := [2]int64{userID, productID}
	next, err := money.TakeUnits(t.st.stock[k], qty)
	if err != nil {
		return t.st.stock[k], ErrInsufficientStock
	}
	t.st.stock[k] = next
	return next, nil
}

func (t *memTx) StockEntries(_ context.Context, userID int64) ([]StockEntry, error) {
	var out []StockEntry
	for k, q := range t.st.stock {
		if k[0] == userID {
			out = append(out, StockEntry{UserID: userID, ProductID: k[1], Quantity: q})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (t *memTx) InsertOrder(_ context.Context, o Order) (Order, error) {
	if err := t.fault("InsertOrder"); err != nil {
		return Order{}, err
	}
	if _, ok := t.st.users[o.UserID]; !ok {
		return Order{}, ErrUserNotFound
	}
	t.st.nextOrder++
	o.ID = t.st.nextOrder
	o.Lines = append([]OrderLine(nil), o.Lines...)
	t.st.orders[o.ID] = o
	return o, nil
}

func (t *memTx) Order(_ context.Context, orderID int64) (Order, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return o, nil
}

func (t *memTx) LockOrder(ctx context.Context, orderID int64) (Order, error) {
	return t.Order(ctx, orderID)
}

func (t *memTx) TransitionOrder(_ context.Context, orderID int64, from, to OrderStatus) error {
	if err := t.fault("TransitionOrder"); err != nil {
		return err
	}
	o, ok := t.st.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return ErrInvalidOrderState
	}
	o.Status = to
	t.st.orders[orderID] = o
	return nil
}

func (t *memTx) ListOrders(_ context.Context, f OrderFilter) ([]Order, int64, error) {
	var matched []Order
	for _, o := range t.st.orders {
		if f.UserID != 0 && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := int64(len(matched))
	page, perPage := normalizePage(f.Page, f.PerPage)
	start := (page - 1) * perPage
	if start >= len(matched) {
		return []Order{}, total, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (t *memTx) CountOrders(_ context.Context, userID int64, status OrderStatus) (int64, error) {
	var n int64
	for _, o := range t.st.orders {
		if o.UserID == userID && o.Status == status {
			n++
		}
	}
	return n, nil
}

func (t *memTx) AppendLog(_ context.Context, e LogEntry) (LogEntry, error) {
	if err := t.fault("AppendLog"); err != nil {
		return LogEntry{}, err
	}
	t.st.nextLog++
	e.ID = t.st.nextLog
	t.st.logs = append(t.st.logs, e)
	return e, nil
}

func (t *memTx) History(_ context.Context, userID int64, limit int) ([]LogEntry, error) {
	var out []LogEntry
	for i := len(t.st.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if t.st.logs[i].UserID == userID {
			out = append(out, t.st.logs[i])
		}
	}
	return out, nil
}

func (t *memTx) Progress(_ context.Context, userID int64) (Progress, bool, error) {
	p, ok := t.st.progress[userID]
	return p, ok, nil
}

func (t *memTx) LockProgress(ctx context.Context, userID int64) (Progress, bool, error) {
	return t.Progress(ctx, userID)
}

func (t *memTx) SaveProgress(_ context.Context, p Progress) error {
	if err := t.fault("SaveProgress"); err != nil {
		return err
	}
	t.st.progress[p.UserID] = p
	return nil
}

func (t *memTx) GlobalStats(_ context.Context) (GlobalStats, error) {
	g := GlobalStats{Players: int64(len(t.st.users)), TotalEarned: decimal.Zero, TotalSpent: decimal.Zero}
	for _, o := range t.st.orders {
		switch o.Status {
		case StatusPending:
			g.PendingOrders++
		case StatusCompleted:
			g.CompletedOrders++
		case StatusCancelled:
			g.CancelledOrders++
		}
	}
	for _, p := range t.st.progress {
		g.TotalEarned = g.TotalEarned.Add(p.TotalEarned)
		g.TotalSpent = g.TotalSpent.Add(p.TotalSpent)
	}
	return g, nil
}
