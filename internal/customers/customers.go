// Package customers plays the café's walk-in customers: it places pending
// orders for players so there is something to serve.
package customers

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"cafe/internal/game"
)

// Cafe is the part of game.Service the generator needs.
type Cafe interface {
	Players(ctx context.Context) ([]game.PlayerView, error)
	InStock(ctx context.Context, userID int64) ([]game.InventoryView, error)
	ListOrders(ctx context.Context, userID int64, status game.OrderStatus, page, perPage int) (game.OrderPage, error)
	CreateOrder(ctx context.Context, in game.CreateOrderInput) (game.OrderView, error)
}

type Options struct {
	// MaxLines caps distinct items per order.
	MaxLines int
	// MaxPending stops a player's queue from growing forever when they are away.
	MaxPending int64
	// MaxQuantity caps units per line. Defaults to 3.
	MaxQuantity int64
	Rand        *rand.Rand
}

type Generator struct {
	cafe Cafe
	log  *slog.Logger
	opts Options
}

// RoundResult summarises one pass over every player.
type RoundResult struct {
	Players int
	Orders  int
	Skipped int
	Failed  int
}

func NewGenerator(cafe Cafe, logger *slog.Logger, opts Options) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxLines < 1 {
		opts.MaxLines = 1
	}
	if opts.MaxPending < 1 {
		opts.MaxPending = 1
	}
	if opts.MaxQuantity < 1 {
		opts.MaxQuantity = 3
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return &Generator{cafe: cafe, log: logger, opts: opts}
}

// RunRound gives every player at most one new customer. Players with nothing
// in stock or a full queue are skipped. A failure for one player does not stop
// the round.
func (g *Generator) RunRound(ctx context.Context) (RoundResult, error) {
	var res RoundResult
	players, err := g.cafe.Players(ctx)
	if err != nil {
		return res, err
	}
	res.Players = len(players)
	for _, p := range players {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		placed, err := g.serve(ctx, p.ID)
		switch {
		case err != nil:
			res.Failed++
			g.log.Error("customer order failed", "user_id", p.ID, "err", err)
		case placed:
			res.Orders++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

func (g *Generator) serve(ctx context.Context, userID int64) (bool, error) {
	pending, err := g.cafe.ListOrders(ctx, userID, game.StatusPending, 1, 1)
	if err != nil {
		return false, err
	}
	if pending.Total >= g.opts.MaxPending {
		return false, nil
	}
	stock, err := g.cafe.InStock(ctx, userID)
	if err != nil {
		return false, err
	}
	lines := g.pick(stock)
	if len(lines) == 0 {
		return false, nil
	}
	o, err := g.cafe.CreateOrder(ctx, game.CreateOrderInput{
		UserID:         userID,
		Lines:          lines,
		IdempotencyKey: "customer:" + uuid.NewString(),
	})
	if errors.Is(err, game.ErrProductNotFound) {
		// Item left the menu between the stock read and the order.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	g.log.Info("customer ordered", "user_id", userID, "order_id", o.ID, "lines", len(lines))
	return true, nil
}

// pick chooses distinct in-stock items and a quantity the shelf can cover.
func (g *Generator) pick(stock []game.InventoryView) []game.LineInput {
	if len(stock) == 0 {
		return nil
	}
	r := g.opts.Rand
	n := 1 + r.IntN(min(g.opts.MaxLines, len(stock)))
	lines := make([]game.LineInput, 0, n)
	for _, i := range r.Perm(len(stock))[:n] {
		item := stock[i]
		limit := min(item.Quantity, g.opts.MaxQuantity)
		lines = append(lines, game.LineInput{ProductID: item.ProductID, Quantity: 1 + r.Int64N(limit)})
	}
	return lines
}
