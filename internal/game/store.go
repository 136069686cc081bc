package game

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store runs units of work. Everything fn does through tx commits together or
// not at all; fn may be invoked more than once when the backend retries a
// conflicting transaction, so it must not leak side effects outside tx.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside one unit of work.
// Lock* methods take row locks that are held until the unit of work ends.
type Tx interface {
	ClaimIdempotency(ctx context.Context, userID int64, key, action string) error

	CreateUser(ctx context.Context, u User) (User, error)
	UserBySubject(ctx context.Context, subject string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	// User reads without locking; view paths use it.
	User(ctx context.Context, userID int64) (User, error)
	LockUser(ctx context.Context, userID int64) (User, error)
	Users(ctx context.Context) ([]User, error)
	SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) error
	SetAdmin(ctx context.Context, userID int64, admin bool) error

	Product(ctx context.Context, productID int64) (Product, error)
	Products(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)

	// LockStock returns the held quantity, zero when the player never held the item.
	LockStock(ctx context.Context, userID, productID int64) (int64, error)
	AddStock(ctx context.Context, userID, productID, qty int64) (int64, error)
	// RemoveStock fails with ErrInsufficientStock instead of going below zero.
	RemoveStock(ctx context.Context, userID, productID, qty int64) (int64, error)
	StockEntries(ctx context.Context, userID int64) ([]StockEntry, error)

	InsertOrder(ctx context.Context, o Order) (Order, error)
	Order(ctx context.Context, orderID int64) (Order, error)
	LockOrder(ctx context.Context, orderID int64) (Order, error)
	// TransitionOrder moves an order out of from; ErrInvalidOrderState when it is not there.
	TransitionOrder(ctx context.Context, orderID int64, from, to OrderStatus) error
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int64, error)
	CountOrders(ctx context.Context, userID int64, status OrderStatus) (int64, error)

	AppendLog(ctx context.Context, e LogEntry) (LogEntry, error)
	History(ctx context.Context, userID int64, limit int) ([]LogEntry, error)
	// Progress and LockProgress report false when the player has no progress row yet.
	Progress(ctx context.Context, userID int64) (Progress, bool, error)
	LockProgress(ctx context.Context, userID int64) (Progress, bool, error)
	SaveProgress(ctx context.Context, p Progress) error
	GlobalStats(ctx context.Context) (GlobalStats, error)
}
