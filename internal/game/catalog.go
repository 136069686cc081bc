package game

import (
	"context"
	"errors"
	"sort"

	"cafe/internal/money"
)

// catalog resolves menu items inside one unit of work. Prices never change
// once an item exists, so each id is read at most once.
type catalog struct {
	tx   Tx
	seen map[int64]Product
}

func newCatalog(tx Tx) *catalog {
	return &catalog{tx: tx, seen: make(map[int64]Product)}
}

func (c *catalog) Resolve(ctx context.Context, productID int64) (Product, error) {
	if p, ok := c.seen[productID]; ok {
		return p, nil
	}
	p, err := c.tx.Product(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	c.seen[productID] = p
	return p, nil
}

// demand sums line quantities per product and returns the ids in ascending
// order, which is also the order stock rows are locked in. A sum past int64
// can never be held, so it fails as ErrInsufficientStock.
func demand(lines []OrderLine) (map[int64]int64, []int64, error) {
	need := make(map[int64]int64, len(lines))
	for _, l := range lines {
		total, err := money.AddUnits(need[l.ProductID], l.Quantity)
		if errors.Is(err, money.ErrQuantityOverflow) {
			return nil, nil, ErrInsufficientStock
		}
		if err != nil {
			return nil, nil, ErrInvalidQuantity
		}
		need[l.ProductID] = total
	}
	ids := make([]int64, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return need, ids, nil
}
