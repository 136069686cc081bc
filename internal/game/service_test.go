package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafe/internal/money"
)

type recordedEvents struct {
	NopEvents
	mu        sync.Mutex
	completed []int64
	levels    map[string]int
}

func (r *recordedEvents) OrderCompleted(_ context.Context, _, orderID int64, _ decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, orderID)
}

func (r *recordedEvents) LevelUp(_ context.Context, username string, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.levels == nil {
		r.levels = make(map[string]int)
	}
	r.levels[username] = level
}

type fixture struct {
	ctx    context.Context
	store  *MemoryStore
	svc    *Service
	events *recordedEvents
	alice  Caller
	bob    Caller
	admin  Caller
	coffee MenuItemView
	tea    MenuItemView
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	events := &recordedEvents{}
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		Events:         events,
		AdminUsernames: []string{"boss"},
		Now:            fixedClock,
	})

	f := &fixture{ctx: ctx, store: store, svc: svc, events: events}
	var err error
	f.alice, err = svc.EnsurePlayer(ctx, "local:alice", "", "alice")
	require.NoError(t, err)
	f.bob, err = svc.EnsurePlayer(ctx, "local:bob", "", "bob")
	require.NoError(t, err)
	f.admin, err = svc.EnsurePlayer(ctx, "local:boss", "", "boss")
	require.NoError(t, err)
	require.True(t, f.admin.Admin)

	f.coffee, err = svc.AddProduct(ctx, f.admin, AddProductInput{Name: "Café", PurchasePrice: money.MustParse("1.00"), SellingPrice: money.MustParse("1.20")})
	require.NoError(t, err)
	f.tea, err = svc.AddProduct(ctx, f.admin, AddProductInput{Name: "Thé", PurchasePrice: money.MustParse("0.80"), SellingPrice: money.MustParse("1.00")})
	require.NoError(t, err)
	return f
}

func (f *fixture) restock(t *testing.T, who Caller, item MenuItemView, qty int64) {
	t.Helper()
	_, err := f.svc.Restock(f.ctx, RestockInput{UserID: who.UserID, ProductID: item.ID, Quantity: qty})
	require.NoError(t, err)
}

func (f *fixture) order(t *testing.T, who Caller, lines ...LineInput) OrderView {
	t.Helper()
	o, err := f.svc.CreateOrder(f.ctx, CreateOrderInput{UserID: who.UserID, Lines: lines})
	require.NoError(t, err)
	return o
}

func TestOrderLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "1000.00", money.Format(f.store.Balance(f.alice.UserID)))

	res, err := f.svc.Restock(f.ctx, RestockInput{UserID: f.alice.UserID, ProductID: f.coffee.ID, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, "5.00", res.Cost.String())
	assert.Equal(t, "995.00", res.Balance.String())
	assert.Equal(t, int64(5), f.store.StockOf(f.alice.UserID, f.coffee.ID))

	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 5})
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "6.00", o.Total.String())
	assert.Equal(t, int64(5), f.store.StockOf(f.alice.UserID, f.coffee.ID), "creation reserves nothing")
	assert.Equal(t, "995.00", money.Format(f.store.Balance(f.alice.UserID)))

	done, err := f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, "6.00", done.Revenue.String())
	assert.Equal(t, "1001.00", done.Balance.String())
	assert.Equal(t, "1001.00", money.Format(f.store.Balance(f.alice.UserID)))
	assert.Equal(t, int64(0), f.store.StockOf(f.alice.UserID, f.coffee.ID))
	assert.Equal(t, StatusCompleted, f.store.OrderStatus(o.ID))

	p, ok := f.store.ProgressOf(f.alice.UserID)
	require.True(t, ok)
	assert.Equal(t, int64(1), p.TotalOrders)
	assert.Equal(t, "6.00", money.Format(p.TotalEarned))
	assert.Equal(t, "5.00", money.Format(p.TotalSpent))
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, []int64{o.ID}, f.events.completed)

	stats, err := f.svc.Stats(f.ctx, f.alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "1.00", stats.Profit.String())
	assert.Contains(t, stats.LowStock, "Café")
	assert.Equal(t, int64(0), stats.Pending)

	hist, err := f.svc.History(f.ctx, f.alice.UserID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, ActionOrderCompleted, hist[0].Kind)
	require.NotNil(t, hist[0].Amount)
	assert.Equal(t, "6.00", hist[0].Amount.String())
	assert.Equal(t, ActionOrderCreated, hist[1].Kind)
	assert.Nil(t, hist[1].Amount)
	assert.Equal(t, ActionRestock, hist[2].Kind)
	assert.Equal(t, "-5.00", hist[2].Amount.String())
}

func TestCreateOrderRejectsUnknownItemAtomically(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(f.ctx, CreateOrderInput{
		UserID: f.alice.UserID,
		Lines:  []LineInput{{ProductID: f.coffee.ID, Quantity: 1}, {ProductID: 999, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrProductNotFound)

	page, err := f.svc.ListOrders(f.ctx, f.alice.UserID, "", 1, 20)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, f.store.Logs(f.alice.UserID))
}

func TestCreateOrderValidatesLines(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(f.ctx, CreateOrderInput{UserID: f.alice.UserID})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = f.svc.CreateOrder(f.ctx, CreateOrderInput{UserID: f.alice.UserID, Lines: []LineInput{{ProductID: f.coffee.ID, Quantity: 0}}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 2}, LineInput{ProductID: f.tea.ID, Quantity: 1})
	assert.Len(t, o.Lines, 2)
	assert.Len(t, f.store.Logs(f.alice.UserID), 2, "one log per line")
	_, ok := f.store.ProgressOf(f.alice.UserID)
	assert.False(t, ok)
}

func TestCreateOrderCapsLineQuantity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(f.ctx, CreateOrderInput{
		UserID: f.alice.UserID,
		Lines:  []LineInput{{ProductID: f.coffee.ID, Quantity: MaxLineQuantity + 1}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	page, err := f.svc.ListOrders(f.ctx, f.alice.UserID, "", 1, 20)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCompleteWithOverflowingDemandIsAShortage(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 5)
	half := int64(math.MaxInt64/2 + 1)

	// Rows written before the per-line cap existed.
	var orderID int64
	require.NoError(t, f.store.InTx(f.ctx, func(tx Tx) error {
		o, err := tx.InsertOrder(f.ctx, Order{
			UserID: f.alice.UserID,
			Status: StatusPending,
			Lines: []OrderLine{
				{ProductID: f.coffee.ID, Quantity: half},
				{ProductID: f.coffee.ID, Quantity: half},
			},
			CreatedAt: fixedClock(),
			UpdatedAt: fixedClock(),
		})
		orderID = o.ID
		return err
	}))

	before := f.store.Balance(f.alice.UserID)
	_, err := f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: orderID})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrOrderProcessingFailed)
	assert.True(t, before.Equal(f.store.Balance(f.alice.UserID)))
	assert.Equal(t, int64(5), f.store.StockOf(f.alice.UserID, f.coffee.ID))
	assert.Equal(t, StatusPending, f.store.OrderStatus(orderID))
}

func TestCompleteShortLineChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 5)
	f.restock(t, f.alice, f.tea, 1)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 2}, LineInput{ProductID: f.tea.ID, Quantity: 3})

	before := f.store.Balance(f.alice.UserID)
	logsBefore := len(f.store.Logs(f.alice.UserID))
	progressBefore, _ := f.store.ProgressOf(f.alice.UserID)

	_, err := f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "Not enough stock", err.Error())

	assert.True(t, before.Equal(f.store.Balance(f.alice.UserID)))
	assert.Equal(t, int64(5), f.store.StockOf(f.alice.UserID, f.coffee.ID))
	assert.Equal(t, int64(1), f.store.StockOf(f.alice.UserID, f.tea.ID))
	assert.Equal(t, StatusPending, f.store.OrderStatus(o.ID))
	assert.Len(t, f.store.Logs(f.alice.UserID), logsBefore)
	progressAfter, _ := f.store.ProgressOf(f.alice.UserID)
	assert.Equal(t, progressBefore, progressAfter)
}

func TestCompleteCountsRepeatedItemsTogether(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 5)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 3}, LineInput{ProductID: f.coffee.ID, Quantity: 3})

	_, err := f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(5), f.store.StockOf(f.alice.UserID, f.coffee.ID))
}

func TestCompleteTwiceCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 10)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 2})

	_, err := f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.NoError(t, err)
	_, err = f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.ErrorIs(t, err, ErrInvalidOrderState)

	assert.Equal(t, "992.40", money.Format(f.store.Balance(f.alice.UserID)))
	assert.Equal(t, int64(8), f.store.StockOf(f.alice.UserID, f.coffee.ID))
	p, _ := f.store.ProgressOf(f.alice.UserID)
	assert.Equal(t, int64(1), p.TotalOrders)
}

func TestOtherPlayersOrdersAreOffLimits(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 2)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 1})

	_, err := f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.bob.UserID, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.CancelOrder(f.ctx, OrderActionInput{UserID: f.bob.UserID, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.GetOrder(f.ctx, f.bob.UserID, o.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.GetOrder(f.ctx, f.admin.UserID, o.ID)
	assert.ErrorIs(t, err, ErrForbidden, "admins list orders but do not act as owners")

	_, err = f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: 424242})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, StatusPending, f.store.OrderStatus(o.ID))
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 3)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 3})

	res, err := f.svc.CancelOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)

	_, err = f.svc.CancelOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrInvalidOrderState)
	_, err = f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	assert.ErrorIs(t, err, ErrInvalidOrderState)

	assert.Equal(t, int64(3), f.store.StockOf(f.alice.UserID, f.coffee.ID))
	assert.Equal(t, "997.00", money.Format(f.store.Balance(f.alice.UserID)))
	logs := f.store.Logs(f.alice.UserID)
	assert.Equal(t, ActionOrderCancelled, logs[len(logs)-1].Kind)
}

func TestRestockInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	pricey, err := f.svc.AddProduct(f.ctx, f.admin, AddProductInput{Name: "Grand cru", PurchasePrice: money.MustParse("300.00"), SellingPrice: money.MustParse("450.00")})
	require.NoError(t, err)

	_, err = f.svc.Restock(f.ctx, RestockInput{UserID: f.alice.UserID, ProductID: pricey.ID, Quantity: 4})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "Pas assez d'argent")
	assert.Contains(t, err.Error(), "you can afford 3")

	assert.Equal(t, "1000.00", money.Format(f.store.Balance(f.alice.UserID)))
	assert.Zero(t, f.store.StockOf(f.alice.UserID, pricey.ID))
	assert.Empty(t, f.store.Logs(f.alice.UserID))

	_, err = f.svc.Restock(f.ctx, RestockInput{UserID: f.alice.UserID, ProductID: pricey.ID, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.Restock(f.ctx, RestockInput{UserID: f.alice.UserID, ProductID: 999, Quantity: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestRestockExactBalance(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Restock(f.ctx, RestockInput{UserID: f.alice.UserID, ProductID: f.coffee.ID, Quantity: 1000})
	require.NoError(t, err)
	assert.Equal(t, "0.00", res.Balance.String())
	assert.Equal(t, int64(1000), res.Quantity)
}

func TestConcurrentCompletionsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 4)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 4})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidOrderState)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(0), f.store.StockOf(f.alice.UserID, f.coffee.ID))
	assert.Equal(t, "1000.80", money.Format(f.store.Balance(f.alice.UserID)))
}

func TestIdempotencyKeyReplayIsRejected(t *testing.T) {
	f := newFixture(t)
	in := RestockInput{UserID: f.alice.UserID, ProductID: f.coffee.ID, Quantity: 2, IdempotencyKey: "restock-1"}
	_, err := f.svc.Restock(f.ctx, in)
	require.NoError(t, err)
	_, err = f.svc.Restock(f.ctx, in)
	require.ErrorIs(t, err, ErrDuplicateIdempotency)

	assert.Equal(t, int64(2), f.store.StockOf(f.alice.UserID, f.coffee.ID))
	assert.Equal(t, "998.00", money.Format(f.store.Balance(f.alice.UserID)))

	// Keys are scoped per player.
	_, err = f.svc.Restock(f.ctx, RestockInput{UserID: f.bob.UserID, ProductID: f.coffee.ID, Quantity: 1, IdempotencyKey: "restock-1"})
	require.NoError(t, err)
}

func TestFailureAfterValidationRollsBack(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 5)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 5})
	logsBefore := len(f.store.Logs(f.alice.UserID))

	boom := errors.New("connection reset")
	f.store.InjectFault("TransitionOrder", boom)
	_, err := f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.ErrorIs(t, err, ErrOrderProcessingFailed)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, "995.00", money.Format(f.store.Balance(f.alice.UserID)))
	assert.Equal(t, int64(5), f.store.StockOf(f.alice.UserID, f.coffee.ID))
	assert.Equal(t, StatusPending, f.store.OrderStatus(o.ID))
	assert.Len(t, f.store.Logs(f.alice.UserID), logsBefore)

	f.store.InjectFault("AddStock", boom)
	_, err = f.svc.Restock(f.ctx, RestockInput{UserID: f.alice.UserID, ProductID: f.coffee.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrOrderProcessingFailed)
	assert.Equal(t, "995.00", money.Format(f.store.Balance(f.alice.UserID)))

	_, err = f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.NoError(t, err)
}

func TestCompletionLevelsUp(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.InTx(f.ctx, func(tx Tx) error {
		return tx.SaveProgress(f.ctx, Progress{UserID: f.alice.UserID, TotalEarned: money.MustParse("95.00"), TotalSpent: decimal.Zero, TotalOrders: 9, Level: 1})
	}))
	f.restock(t, f.alice, f.coffee, 5)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 5})

	res, err := f.svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.NoError(t, err)
	assert.True(t, res.LevelUp)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, 2, f.events.levels["alice"])

	progress, err := f.svc.Progress(f.ctx, f.alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Level)
	assert.Equal(t, 3, progress.Next.Level)
	assert.Equal(t, "101.00", progress.TotalEarned.String())
}

func TestListOrdersPagingAndAdmin(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 1})
	}
	f.order(t, f.bob, LineInput{ProductID: f.tea.ID, Quantity: 1})

	page, err := f.svc.ListOrders(f.ctx, f.alice.UserID, StatusPending, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, int64(3), page.TotalPages)
	require.Len(t, page.Orders, 2)
	assert.Greater(t, page.Orders[0].ID, page.Orders[1].ID)

	_, err = f.svc.AdminListOrders(f.ctx, f.alice, "", 1, 20)
	assert.ErrorIs(t, err, ErrAdminOnly)
	all, err := f.svc.AdminListOrders(f.ctx, f.admin, "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(6), all.Total)

	g, err := f.svc.GlobalStats(f.ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(3), g.Players)
	assert.Equal(t, int64(6), g.PendingOrders)
}

func TestMenuAndPlayers(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddProduct(f.ctx, f.alice, AddProductInput{Name: "Latte", PurchasePrice: money.MustParse("1"), SellingPrice: money.MustParse("2")})
	assert.ErrorIs(t, err, ErrAdminOnly)
	_, err = f.svc.AddProduct(f.ctx, f.admin, AddProductInput{Name: "café", PurchasePrice: money.MustParse("1"), SellingPrice: money.MustParse("2")})
	assert.ErrorIs(t, err, ErrDuplicateProduct)

	menu, err := f.svc.Menu(f.ctx)
	require.NoError(t, err)
	require.Len(t, menu, 2)
	assert.Equal(t, "0.20", menu[0].Margin.String())

	added, err := f.svc.SeedMenu(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, added, "seeding leaves a non-empty menu alone")

	again, err := f.svc.EnsurePlayer(f.ctx, "local:alice", "", "alice")
	require.NoError(t, err)
	assert.Equal(t, f.alice.UserID, again.UserID)

	clash, err := f.svc.EnsurePlayer(f.ctx, "supabase:other", "alice@example.org", "")
	require.NoError(t, err)
	assert.Equal(t, "alice_2", clash.Username)

	_, err = f.svc.RegisterLocal(f.ctx, "bob", "hash")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	inv, err := f.svc.Inventory(f.ctx, f.alice.UserID)
	require.NoError(t, err)
	require.Len(t, inv, 2)
	assert.True(t, inv[0].Low)

	players, err := f.svc.Players(f.ctx)
	require.NoError(t, err)
	require.Len(t, players, 4)
	assert.Equal(t, "alice", players[0].Username)
	assert.Equal(t, "1000.00", players[0].Balance.String())
	assert.True(t, players[2].Admin)

	_, err = f.svc.AdminPlayers(f.ctx, f.alice)
	assert.ErrorIs(t, err, ErrAdminOnly)
	listed, err := f.svc.AdminPlayers(f.ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, players, listed)
}

func TestSeedMenuOnEmptyStore(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, Options{})
	added, err := svc.SeedMenu(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(defaultMenu), added)
}

// lockRecorder notes every row lock a unit of work asks for.
type lockRecorder struct {
	Tx
	locks *[]string
}

func (r lockRecorder) LockUser(ctx context.Context, userID int64) (User, error) {
	*r.locks = append(*r.locks, "user")
	return r.Tx.LockUser(ctx, userID)
}

func (r lockRecorder) LockProgress(ctx context.Context, userID int64) (Progress, bool, error) {
	*r.locks = append(*r.locks, "progress")
	return r.Tx.LockProgress(ctx, userID)
}

func (r lockRecorder) LockStock(ctx context.Context, userID, productID int64) (int64, error) {
	*r.locks = append(*r.locks, "stock")
	return r.Tx.LockStock(ctx, userID, productID)
}

func (r lockRecorder) LockOrder(ctx context.Context, orderID int64) (Order, error) {
	*r.locks = append(*r.locks, "order")
	return r.Tx.LockOrder(ctx, orderID)
}

type lockRecordingStore struct {
	inner *MemoryStore
	locks []string
}

func (s *lockRecordingStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.inner.InTx(ctx, func(tx Tx) error {
		return fn(lockRecorder{Tx: tx, locks: &s.locks})
	})
}

func TestReadViewsTakeNoRowLocks(t *testing.T) {
	f := newFixture(t)
	f.restock(t, f.alice, f.coffee, 12)
	o := f.order(t, f.alice, LineInput{ProductID: f.coffee.ID, Quantity: 2})

	rec := &lockRecordingStore{inner: f.store}
	svc := NewService(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Now: fixedClock})

	_, err := svc.Player(f.ctx, f.alice.UserID)
	require.NoError(t, err)
	_, err = svc.Stats(f.ctx, f.alice.UserID)
	require.NoError(t, err)
	_, err = svc.Progress(f.ctx, f.alice.UserID)
	require.NoError(t, err)
	_, err = svc.Inventory(f.ctx, f.alice.UserID)
	require.NoError(t, err)
	_, err = svc.History(f.ctx, f.alice.UserID, 10)
	require.NoError(t, err)
	_, err = svc.GetOrder(f.ctx, f.alice.UserID, o.ID)
	require.NoError(t, err)
	_, err = svc.ListOrders(f.ctx, f.alice.UserID, StatusPending, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, rec.locks)

	_, err = svc.CompleteOrder(f.ctx, OrderActionInput{UserID: f.alice.UserID, OrderID: o.ID})
	require.NoError(t, err)
	assert.Subset(t, rec.locks, []string{"order", "user", "stock", "progress"})
}
