package game

import (
	"context"
	"errors"
	"strings"

	"cafe/internal/money"
)

// GetOrder returns one of the caller's orders.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (OrderView, error) {
	var out OrderView
	err := s.store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrForbidden
		}
		products, err := productIndex(ctx, tx)
		if err != nil {
			return err
		}
		out = orderView(o, products)
		return nil
	})
	return out, err
}

// ListOrders pages through the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID int64, status OrderStatus, page, perPage int) (OrderPage, error) {
	return s.listOrders(ctx, OrderFilter{UserID: userID, Status: status, Page: page, PerPage: perPage})
}

// AdminListOrders pages through every player's orders.
func (s *Service) AdminListOrders(ctx context.Context, caller Caller, status OrderStatus, page, perPage int) (OrderPage, error) {
	if !caller.Admin {
		return OrderPage{}, ErrAdminOnly
	}
	return s.listOrders(ctx, OrderFilter{Status: status, Page: page, PerPage: perPage})
}

func (s *Service) listOrders(ctx context.Context, f OrderFilter) (OrderPage, error) {
	var out OrderPage
	if f.Status != "" && !f.Status.Valid() {
		return out, ErrInvalidOrderState
	}
	f.Page, f.PerPage = normalizePage(f.Page, f.PerPage)
	err := s.store.InTx(ctx, func(tx Tx) error {
		orders, total, err := tx.ListOrders(ctx, f)
		if err != nil {
			return err
		}
		products, err := productIndex(ctx, tx)
		if err != nil {
			return err
		}
		out = OrderPage{
			Orders:     make([]OrderView, 0, len(orders)),
			Page:       f.Page,
			PerPage:    f.PerPage,
			Total:      total,
			TotalPages: (total + int64(f.PerPage) - 1) / int64(f.PerPage),
		}
		for _, o := range orders {
			out.Orders = append(out.Orders, orderView(o, products))
		}
		return nil
	})
	return out, err
}

// History returns the caller's most recent log entries, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = 50
	}
	var out []HistoryEntry
	err := s.store.InTx(ctx, func(tx Tx) error {
		entries, err := tx.History(ctx, userID, limit)
		if err != nil {
			return err
		}
		out = make([]HistoryEntry, 0, len(entries))
		for _, e := range entries {
			h := HistoryEntry{ID: e.ID, Kind: e.Kind, Message: e.Message, CreatedAt: e.CreatedAt}
			if e.Amount.Valid {
				a := money.A(e.Amount.Decimal)
				h.Amount = &a
			}
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

// Progress reads the caller's totals. Players who never earned or spent
// anything get a level 1 view.
func (s *Service) Progress(ctx context.Context, userID int64) (ProgressView, error) {
	var out ProgressView
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := readProgress(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = progressView(p)
		return nil
	})
	return out, err
}

// Stats is the dashboard summary of one player.
func (s *Service) Stats(ctx context.Context, userID int64) (PlayerStats, error) {
	var out PlayerStats
	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.User(ctx, userID)
		if err != nil {
			return err
		}
		p, err := readProgress(ctx, tx, userID)
		if err != nil {
			return err
		}
		pending, err := tx.CountOrders(ctx, userID, StatusPending)
		if err != nil {
			return err
		}
		inv, err := inventory(ctx, tx, userID)
		if err != nil {
			return err
		}
		low := make([]string, 0)
		for _, row := range inv {
			if row.Low {
				low = append(low, row.Name)
			}
		}
		out = PlayerStats{
			Username: u.Username,
			Balance:  money.A(u.Balance),
			Profit:   money.A(p.TotalEarned.Sub(p.TotalSpent)),
			Pending:  pending,
			LowStock: low,
			Progress: progressView(p),
		}
		return nil
	})
	return out, err
}

func (s *Service) GlobalStats(ctx context.Context, caller Caller) (GlobalStatsView, error) {
	var out GlobalStatsView
	if !caller.Admin {
		return out, ErrAdminOnly
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		g, err := tx.GlobalStats(ctx)
		if err != nil {
			return err
		}
		out = GlobalStatsView{
			Players:         g.Players,
			PendingOrders:   g.PendingOrders,
			CompletedOrders: g.CompletedOrders,
			CancelledOrders: g.CancelledOrders,
			TotalEarned:     money.A(g.TotalEarned),
			TotalSpent:      money.A(g.TotalSpent),
		}
		return nil
	})
	return out, err
}

// Inventory lists every menu item with the caller's held quantity, including
// items never bought.
func (s *Service) Inventory(ctx context.Context, userID int64) ([]InventoryView, error) {
	var out []InventoryView
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = inventory(ctx, tx, userID)
		return err
	})
	return out, err
}

// InStock lists the items the player holds at least one unit of.
func (s *Service) InStock(ctx context.Context, userID int64) ([]InventoryView, error) {
	rows, err := s.Inventory(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, r := range rows {
		if r.Quantity > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) Menu(ctx context.Context) ([]MenuItemView, error) {
	var out []MenuItemView
	err := s.store.InTx(ctx, func(tx Tx) error {
		products, err := tx.Products(ctx)
		if err != nil {
			return err
		}
		out = make([]MenuItemView, 0, len(products))
		for _, p := range products {
			out = append(out, menuItemView(p))
		}
		return nil
	})
	return out, err
}

func (s *Service) MenuItem(ctx context.Context, productID int64) (MenuItemView, error) {
	var out MenuItemView
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := newCatalog(tx).Resolve(ctx, productID)
		if err != nil {
			return err
		}
		out = menuItemView(p)
		return nil
	})
	return out, err
}

// ParseStatus accepts the status names used on the wire; empty means any.
func ParseStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if st == "" || st.Valid() {
		return st, nil
	}
	return "", errors.New("status must be pending, completed or cancelled")
}

func readProgress(ctx context.Context, tx Tx, userID int64) (Progress, error) {
	p, ok, err := tx.Progress(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	if !ok {
		p = newProgress(userID)
	}
	return p, nil
}

func progressView(p Progress) ProgressView {
	return ProgressView{
		TotalEarned: money.A(p.TotalEarned),
		TotalSpent:  money.A(p.TotalSpent),
		TotalOrders: p.TotalOrders,
		Level:       p.Level,
		Next:        NextLevelFor(p),
	}
}

func inventory(ctx context.Context, tx Tx, userID int64) ([]InventoryView, error) {
	products, err := tx.Products(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := tx.StockEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[int64]int64, len(entries))
	for _, e := range entries {
		held[e.ProductID] = e.Quantity
	}
	out := make([]InventoryView, 0, len(products))
	for _, p := range products {
		q := held[p.ID]
		out = append(out, InventoryView{ProductID: p.ID, Name: p.Name, Quantity: q, Low: q < LowStockThreshold})
	}
	return out, nil
}

func productIndex(ctx context.Context, tx Tx) (map[int64]Product, error) {
	products, err := tx.Products(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[int64]Product, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return idx, nil
}

func menuItemView(p Product) MenuItemView {
	return MenuItemView{
		ID:            p.ID,
		Name:          p.Name,
		PurchasePrice: money.A(p.PurchasePrice),
		SellingPrice:  money.A(p.SellingPrice),
		Margin:        money.A(p.SellingPrice.Sub(p.PurchasePrice)),
	}
}
