package game

import (
	"context"

	"github.com/shopspring/decimal"
)

// Events is told about committed changes. Calls happen after the unit of work
// commits and never affect its outcome.
type Events interface {
	OrderCreated(ctx context.Context, userID, orderID int64)
	OrderCompleted(ctx context.Context, userID, orderID int64, revenue decimal.Decimal)
	OrderCancelled(ctx context.Context, userID, orderID int64)
	Restocked(ctx context.Context, userID, productID, qty int64, cost decimal.Decimal)
	LevelUp(ctx context.Context, username string, level int)
}

// NopEvents ignores everything; embed it to implement a subset of Events.
type NopEvents struct{}

func (NopEvents) OrderCreated(context.Context, int64, int64) {}
func (NopEvents) OrderCompleted(context.Context, int64, int64, decimal.Decimal) {}
func (NopEvents) OrderCancelled(context.Context, int64, int64) {}
func (NopEvents) Restocked(context.Context, int64, int64, int64, decimal.Decimal) {}
func (NopEvents) LevelUp(context.Context, string, int) {}

// MultiEvents fans out to each sink in order.
type MultiEvents []Events

func (m MultiEvents) OrderCreated(ctx context.Context, userID, orderID int64) {
	for _, e := range m {
		e.OrderCreated(ctx, userID, orderID)
	}
}

func (m MultiEvents) OrderCompleted(ctx context.Context, userID, orderID int64, revenue decimal.Decimal) {
	for _, e := range m {
		e.OrderCompleted(ctx, userID, orderID, revenue)
	}
}

func (m MultiEvents) OrderCancelled(ctx context.Context, userID, orderID int64) {
	for _, e := range m {
		e.OrderCancelled(ctx, userID, orderID)
	}
}

func (m MultiEvents) Restocked(ctx context.Context, userID, productID, qty int64, cost decimal.Decimal) {
	for _, e := range m {
		e.Restocked(ctx, userID, productID, qty, cost)
	}
}

func (m MultiEvents) LevelUp(ctx context.Context, username string, level int) {
	for _, e := range m {
		e.LevelUp(ctx, username, level)
	}
}
