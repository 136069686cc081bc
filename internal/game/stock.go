package game

import (
	"context"

	"cafe/internal/money"
)

// stockBook is one player's inventory as seen from a unit of work.
type stockBook struct {
	tx     Tx
	userID int64
}

// Get returns the held quantity and locks the row until the unit of work ends.
func (b stockBook) Get(ctx context.Context, productID int64) (int64, error) {
	return b.tx.LockStock(ctx, b.userID, productID)
}

func (b stockBook) Increment(ctx context.Context, productID, qty int64) (int64, error) {
	if err := money.CheckQuantity(qty); err != nil {
		return 0, ErrInvalidQuantity
	}
	return b.tx.AddStock(ctx, b.userID, productID, qty)
}

func (b stockBook) Decrement(ctx context.Context, productID, qty int64) (int64, error) {
	if err := money.CheckQuantity(qty); err != nil {
		return 0, ErrInvalidQuantity
	}
	return b.tx.RemoveStock(ctx, b.userID, productID, qty)
}
