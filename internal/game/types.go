package game

import (
	"time"

	"github.com/shopspring/decimal"

	"cafe/internal/money"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type User struct {
	ID           int64
	Subject      string
	Username     string
	PasswordHash string
	Balance      decimal.Decimal
	IsAdmin      bool
	CreatedAt    time.Time
}

// Product is a menu item. Prices are fixed for the item's lifetime.
type Product struct {
	ID            int64
	Name          string
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
}

type StockEntry struct {
	UserID    int64
	ProductID int64
	Quantity  int64
}

type OrderLine struct {
	ProductID int64
	Quantity  int64
}

type Order struct {
	ID        int64
	UserID    int64
	Status    OrderStatus
	Lines     []OrderLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LogEntry is one row of the append-only action log. Amount is null for
// informational events.
type LogEntry struct {
	ID        int64
	UserID    int64
	Kind      string
	Message   string
	Amount    decimal.NullDecimal
	CreatedAt time.Time
}

type Progress struct {
	UserID      int64
	TotalEarned decimal.Decimal
	TotalSpent  decimal.Decimal
	TotalOrders int64
	Level       int
	UpdatedAt   time.Time
}

func newProgress(userID int64) Progress {
	return Progress{UserID: userID, TotalEarned: decimal.Zero, TotalSpent: decimal.Zero, Level: 1}
}

type OrderFilter struct {
	// UserID zero means every player; only admin listings use that.
	UserID  int64
	Status  OrderStatus
	Page    int
	PerPage int
}

type GlobalStats struct {
	Players         int64
	PendingOrders   int64
	CompletedOrders int64
	CancelledOrders int64
	TotalEarned     decimal.Decimal
	TotalSpent      decimal.Decimal
}

// Caller is the authenticated player an operation runs for.
type Caller struct {
	UserID   int64
	Username string
	Admin    bool
}

type LineInput struct {
	ProductID int64 `json:"item_id"`
	Quantity  int64 `json:"quantity"`
}

type CreateOrderInput struct {
	UserID         int64
	Lines          []LineInput
	IdempotencyKey string
}

type OrderActionInput struct {
	UserID         int64
	OrderID        int64
	IdempotencyKey string
}

type RestockInput struct {
	UserID         int64
	ProductID      int64
	Quantity       int64
	IdempotencyKey string
}

type AddProductInput struct {
	Name          string
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
}

type OrderLineView struct {
	ProductID int64        `json:"item_id"`
	Name      string       `json:"name"`
	Quantity  int64        `json:"quantity"`
	UnitPrice money.Amount `json:"unit_price"`
	Total     money.Amount `json:"total"`
}

type OrderView struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Status    OrderStatus     `json:"status"`
	Lines     []OrderLineView `json:"items"`
	Total     money.Amount    `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OrderPage struct {
	Orders     []OrderView `json:"orders"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	Total      int64       `json:"total"`
	TotalPages int64       `json:"total_pages"`
}

type CompleteResult struct {
	OrderID int64        `json:"order_id"`
	Revenue money.Amount `json:"revenue"`
	Balance money.Amount `json:"balance"`
	Level   int          `json:"level"`
	LevelUp bool         `json:"level_up"`
}

type CancelResult struct {
	OrderID int64       `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

type RestockResult struct {
	ProductID int64        `json:"item_id"`
	Name      string       `json:"name"`
	Quantity  int64        `json:"quantity"`
	Cost      money.Amount `json:"cost"`
	Balance   money.Amount `json:"balance"`
}

type MenuItemView struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	PurchasePrice money.Amount `json:"purchase_price"`
	SellingPrice  money.Amount `json:"selling_price"`
	Margin        money.Amount `json:"margin"`
}

type InventoryView struct {
	ProductID int64  `json:"item_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	Low       bool   `json:"low"`
}

type HistoryEntry struct {
	ID        int64         `json:"id"`
	Kind      string        `json:"action_type"`
	Message   string        `json:"message"`
	Amount    *money.Amount `json:"amount,omitempty"`
	CreatedAt time.Time     `json:"timestamp"`
}

type ProgressView struct {
	TotalEarned money.Amount `json:"total_money_earned"`
	TotalSpent  money.Amount `json:"total_money_spent"`
	TotalOrders int64        `json:"total_orders"`
	Level       int          `json:"current_level"`
	Next        NextLevel    `json:"next_level"`
}

type PlayerStats struct {
	Username string       `json:"username"`
	Balance  money.Amount `json:"balance"`
	Profit   money.Amount `json:"profit"`
	Pending  int64        `json:"pending_orders"`
	LowStock []string     `json:"low_stock"`
	Progress ProgressView `json:"progress"`
}

type GlobalStatsView struct {
	Players         int64        `json:"players"`
	PendingOrders   int64        `json:"pending_orders"`
	CompletedOrders int64        `json:"completed_orders"`
	CancelledOrders int64        `json:"cancelled_orders"`
	TotalEarned     money.Amount `json:"total_money_earned"`
	TotalSpent      money.Amount `json:"total_money_spent"`
}

type PlayerView struct {
	ID       int64        `json:"id"`
	Username string       `json:"username"`
	Balance  money.Amount `json:"balance"`
	Admin    bool         `json:"is_admin"`
}
