package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cafe/internal/money"
)

type Options struct {
	// Folder decides how log entries feed progress. Defaults to AmountFolder.
	Folder          Folder
	Events          Events
	StartingBalance decimal.Decimal
	AdminUsernames  []string
	Now             func() time.Time
}

type Service struct {
	store           Store
	log             *slog.Logger
	ledger          ledger
	events          Events
	startingBalance decimal.Decimal
	admins          map[string]bool
	now             func() time.Time
}

func NewService(store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Folder == nil {
		opts.Folder = AmountFolder{}
	}
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StartingBalance.IsZero() {
		opts.StartingBalance = StarterBalance
	}
	admins := make(map[string]bool, len(opts.AdminUsernames))
	for _, name := range opts.AdminUsernames {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			admins[name] = true
		}
	}
	return &Service{
		store:           store,
		log:             logger,
		ledger:          ledger{folder: opts.Folder, now: opts.Now},
		events:          opts.Events,
		startingBalance: opts.StartingBalance,
		admins:          admins,
		now:             opts.Now,
	}
}

// CreateOrder records a pending order. Every line must name an existing menu
// item; stock and money are untouched until the order is completed.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (OrderView, error) {
	var out OrderView
	if len(in.Lines) == 0 {
		return out, ErrEmptyOrder
	}
	if len(in.Lines) > MaxOrderLines {
		return out, fmt.Errorf("%w: at most %d lines", ErrTooManyLines, MaxOrderLines)
	}
	for _, l := range in.Lines {
		if l.Quantity <= 0 {
			return out, ErrInvalidQuantity
		}
		if l.Quantity > MaxLineQuantity {
			return out, fmt.Errorf("%w: at most %d per line", ErrInvalidQuantity, MaxLineQuantity)
		}
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := claimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "order_create"); err != nil {
			return err
		}
		if _, err := tx.LockUser(ctx, in.UserID); err != nil {
			return err
		}

		cat := newCatalog(tx)
		products := make(map[int64]Product, len(in.Lines))
		lines := make([]OrderLine, 0, len(in.Lines))
		for _, l := range in.Lines {
			p, err := cat.Resolve(ctx, l.ProductID)
			if err != nil {
				return err
			}
			products[p.ID] = p
			lines = append(lines, OrderLine{ProductID: p.ID, Quantity: l.Quantity})
		}

		now := s.now().UTC()
		order, err := tx.InsertOrder(ctx, Order{
			UserID:    in.UserID,
			Status:    StatusPending,
			Lines:     lines,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return processingFailed(err)
		}

		j := s.ledger.begin(tx, in.UserID)
		for _, l := range order.Lines {
			msg := fmt.Sprintf("Order #%d: %d x %s", order.ID, l.Quantity, products[l.ProductID].Name)
			if err := j.Record(ctx, ActionOrderCreated, msg, decimal.Zero); err != nil {
				return processingFailed(err)
			}
		}
		if _, err := j.Flush(ctx); err != nil {
			return processingFailed(err)
		}
		out = orderView(order, products)
		return nil
	})
	if err != nil {
		return out, err
	}

	s.log.Info("order created", "user_id", in.UserID, "order_id", out.ID, "lines", len(out.Lines))
	s.events.OrderCreated(ctx, in.UserID, out.ID)
	return out, nil
}

// CompleteOrder serves a pending order: stock leaves the inventory, revenue at
// selling price lands on the balance and progress advances by one order. Every
// line is checked before anything changes, so a short line leaves the order
// pending and the player untouched.
func (s *Service) CompleteOrder(ctx context.Context, in OrderActionInput) (CompleteResult, error) {
	var out CompleteResult
	var username string
	err := s.store.InTx(ctx, func(tx Tx) error {
		out = CompleteResult{OrderID: in.OrderID}
		if err := claimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "order_complete"); err != nil {
			return err
		}
		order, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != in.UserID {
			return ErrForbidden
		}
		if order.Status != StatusPending {
			return ErrInvalidOrderState
		}
		user, err := tx.LockUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		username = user.Username

		cat := newCatalog(tx)
		stock := stockBook{tx: tx, userID: in.UserID}
		need, ids, err := demand(order.Lines)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := cat.Resolve(ctx, id); err != nil {
				return err
			}
			have, err := stock.Get(ctx, id)
			if err != nil {
				return err
			}
			if have < need[id] {
				return ErrInsufficientStock
			}
		}

		return processingFailed(func() error {
			j := s.ledger.begin(tx, in.UserID)
			revenue := decimal.Zero
			for _, l := range order.Lines {
				p, err := cat.Resolve(ctx, l.ProductID)
				if err != nil {
					return err
				}
				if _, err := stock.Decrement(ctx, l.ProductID, l.Quantity); err != nil {
					return err
				}
				amount := money.LineTotal(p.SellingPrice, l.Quantity)
				revenue = revenue.Add(amount)
				msg := fmt.Sprintf("Sold %d x %s (order #%d)", l.Quantity, p.Name, order.ID)
				if err := j.Record(ctx, ActionOrderCompleted, msg, amount); err != nil {
					return err
				}
			}

			balance, err := money.Credit(user.Balance, revenue)
			if err != nil {
				return err
			}
			if err := tx.SetBalance(ctx, in.UserID, balance); err != nil {
				return err
			}
			if err := tx.TransitionOrder(ctx, order.ID, StatusPending, StatusCompleted); err != nil {
				return err
			}

			j.Count(ProgressDelta{Earned: decimal.Zero, Spent: decimal.Zero, Orders: 1})
			flushed, err := j.Flush(ctx)
			if err != nil {
				return err
			}
			out.Revenue = money.A(revenue)
			out.Balance = money.A(balance)
			out.Level = flushed.Progress.Level
			out.LevelUp = flushed.LevelUp
			return nil
		}())
	})
	if err != nil {
		return out, err
	}

	s.log.Info("order completed", "user_id", in.UserID, "order_id", in.OrderID, "revenue", out.Revenue.String())
	s.events.OrderCompleted(ctx, in.UserID, in.OrderID, out.Revenue.Decimal())
	if out.LevelUp {
		s.log.Info("level up", "user_id", in.UserID, "level", out.Level)
		s.events.LevelUp(ctx, username, out.Level)
	}
	return out, nil
}

// CancelOrder drops a pending order. Nothing was reserved at creation, so
// there is nothing to give back.
func (s *Service) CancelOrder(ctx context.Context, in OrderActionInput) (CancelResult, error) {
	out := CancelResult{OrderID: in.OrderID}
	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := claimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "order_cancel"); err != nil {
			return err
		}
		order, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != in.UserID {
			return ErrForbidden
		}
		if order.Status != StatusPending {
			return ErrInvalidOrderState
		}

		return processingFailed(func() error {
			j := s.ledger.begin(tx, in.UserID)
			if err := j.Record(ctx, ActionOrderCancelled, fmt.Sprintf("Order #%d cancelled", order.ID), decimal.Zero); err != nil {
				return err
			}
			if err := tx.TransitionOrder(ctx, order.ID, StatusPending, StatusCancelled); err != nil {
				return err
			}
			_, err := j.Flush(ctx)
			return err
		}())
	})
	if err != nil {
		return out, err
	}
	out.Status = StatusCancelled

	s.log.Info("order cancelled", "user_id", in.UserID, "order_id", in.OrderID)
	s.events.OrderCancelled(ctx, in.UserID, in.OrderID)
	return out, nil
}

// Restock buys units of a menu item at purchase price.
func (s *Service) Restock(ctx context.Context, in RestockInput) (RestockResult, error) {
	var out RestockResult
	if in.Quantity <= 0 {
		return out, ErrInvalidQuantity
	}
	var username string
	var levelUp bool
	var level int
	err := s.store.InTx(ctx, func(tx Tx) error {
		levelUp = false
		if err := claimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "restock"); err != nil {
			return err
		}
		p, err := newCatalog(tx).Resolve(ctx, in.ProductID)
		if err != nil {
			return err
		}
		user, err := tx.LockUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		username = user.Username

		cost := money.LineTotal(p.PurchasePrice, in.Quantity)
		balance, err := money.Debit(user.Balance, cost)
		if err != nil {
			if errors.Is(err, money.ErrInsufficientBalance) {
				affordable := money.MaxAffordable(user.Balance, p.PurchasePrice)
				return fmt.Errorf("%w: %s costs %s, you can afford %d", ErrInsufficientFunds, p.Name, money.Format(cost), affordable)
			}
			return err
		}

		return processingFailed(func() error {
			if err := tx.SetBalance(ctx, in.UserID, balance); err != nil {
				return err
			}
			held, err := stockBook{tx: tx, userID: in.UserID}.Increment(ctx, p.ID, in.Quantity)
			if err != nil {
				return err
			}
			j := s.ledger.begin(tx, in.UserID)
			msg := fmt.Sprintf("Bought %d x %s", in.Quantity, p.Name)
			if err := j.Record(ctx, ActionRestock, msg, cost.Neg()); err != nil {
				return err
			}
			flushed, err := j.Flush(ctx)
			if err != nil {
				return err
			}
			levelUp = flushed.LevelUp
			level = flushed.Progress.Level
			out = RestockResult{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  held,
				Cost:      money.A(cost),
				Balance:   money.A(balance),
			}
			return nil
		}())
	})
	if err != nil {
		return out, err
	}

	s.log.Info("restocked", "user_id", in.UserID, "item_id", in.ProductID, "quantity", in.Quantity, "cost", out.Cost.String())
	s.events.Restocked(ctx, in.UserID, in.ProductID, in.Quantity, out.Cost.Decimal())
	if levelUp {
		s.events.LevelUp(ctx, username, level)
	}
	return out, nil
}

func claimIdempotency(ctx context.Context, tx Tx, userID int64, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return tx.ClaimIdempotency(ctx, userID, key, action)
}

func orderView(o Order, products map[int64]Product) OrderView {
	v := OrderView{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		Lines:     make([]OrderLineView, 0, len(o.Lines)),
	}
	total := decimal.Zero
	for _, l := range o.Lines {
		p := products[l.ProductID]
		lineTotal := money.LineTotal(p.SellingPrice, l.Quantity)
		total = total.Add(lineTotal)
		v.Lines = append(v.Lines, OrderLineView{
			ProductID: l.ProductID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: money.A(p.SellingPrice),
			Total:     money.A(lineTotal),
		})
	}
	v.Total = money.A(total)
	return v
}
