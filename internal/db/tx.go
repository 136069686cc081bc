package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"cafe/internal/game"
)

// pgTx implements game.Tx on one pgx transaction. Money crosses the wire as
// text so NUMERIC values never pass through floating point.
type pgTx struct {
	tx pgx.Tx
}

var _ game.Tx = (*pgTx)(nil)

const userColumns = `id, subject, username, password_hash, balance::text, is_admin, created_at`

func (t *pgTx) ClaimIdempotency(ctx context.Context, userID int64, key, action string) error {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func (t *pgTx) CreateUser(ctx context.Context, u game.User) (game.User, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO users (subject, username, password_hash, balance, is_admin)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`, u.Subject, u.Username, u.PasswordHash, u.Balance.String(), u.IsAdmin).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.User{}, game.ErrUsernameTaken
		}
		return game.User{}, err
	}
	return u, nil
}

func (t *pgTx) UserBySubject(ctx context.Context, subject string) (game.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE subject = $1`, subject))
}

func (t *pgTx) UserByUsername(ctx context.Context, username string) (game.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}

func (t *pgTx) User(ctx context.Context, userID int64) (game.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (t *pgTx) LockUser(ctx context.Context, userID int64) (game.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
}

func (t *pgTx) Users(ctx context.Context) ([]game.User, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.User, 0, 32)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *pgTx) SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE users SET balance = $2::numeric WHERE id = $1`, userID, balance.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrUserNotFound
	}
	return nil
}

func (t *pgTx) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE users SET is_admin = $2 WHERE id = $1`, userID, admin)
	return err
}

func (t *pgTx) Product(ctx context.Context, productID int64) (game.Product, error) {
	var p game.Product
	var purchase, selling string
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, purchase_price::text, selling_price::text
		FROM menu_items
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &purchase, &selling)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, game.ErrProductNotFound
		}
		return p, err
	}
	return p, parsePrices(&p, purchase, selling)
}

func (t *pgTx) Products(ctx context.Context) ([]game.Product, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, purchase_price::text, selling_price::text
		FROM menu_items
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.Product, 0, 16)
	for rows.Next() {
		var p game.Product
		var purchase, selling string
		if err := rows.Scan(&p.ID, &p.Name, &purchase, &selling); err != nil {
			return nil, err
		}
		if err := parsePrices(&p, purchase, selling); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) CreateProduct(ctx context.Context, p game.Product) (game.Product, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO menu_items (name, purchase_price, selling_price)
		VALUES ($1, $2::numeric, $3::numeric)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, p.Name, p.PurchasePrice.String(), p.SellingPrice.String()).Scan(&p.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Product{}, game.ErrDuplicateProduct
		}
		return game.Product{}, err
	}
	return p, nil
}

func (t *pgTx) LockStock(ctx context.Context, userID, productID int64) (int64, error) {
	var qty int64
	err := t.tx.QueryRow(ctx, `
		SELECT quantity
		FROM inventory
		WHERE user_id = $1 AND menu_item_id = $2
		FOR UPDATE
	`, userID, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (t *pgTx) AddStock(ctx context.Context, userID, productID, qty int64) (int64, error) {
	var held int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory (user_id, menu_item_id, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, menu_item_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING quantity
	`, userID, productID, qty).Scan(&held)
	return held, err
}

func (t *pgTx) RemoveStock(ctx context.Context, userID, productID, qty int64) (int64, error) {
	var left int64
	err := t.tx.QueryRow(ctx, `
		UPDATE inventory
		SET quantity = quantity - $3, updated_at = now()
		WHERE user_id = $1 AND menu_item_id = $2 AND quantity >= $3
		RETURNING quantity
	`, userID, productID, qty).Scan(&left)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, game.ErrInsufficientStock
	}
	return left, err
}

func (t *pgTx) StockEntries(ctx context.Context, userID int64) ([]game.StockEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT menu_item_id, quantity
		FROM inventory
		WHERE user_id = $1
		ORDER BY menu_item_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.StockEntry
	for rows.Next() {
		e := game.StockEntry{UserID: userID}
		if err := rows.Scan(&e.ProductID, &e.Quantity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertOrder(ctx context.Context, o game.Order) (game.Order, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id
	`, o.UserID, string(o.Status), o.CreatedAt).Scan(&o.ID)
	if err != nil {
		return o, err
	}

	positions := make([]int32, len(o.Lines))
	items := make([]int64, len(o.Lines))
	qtys := make([]int64, len(o.Lines))
	for i, l := range o.Lines {
		positions[i] = int32(i)
		items[i] = l.ProductID
		qtys[i] = l.Quantity
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO order_items (order_id, position, menu_item_id, quantity)
		SELECT $1, p, m, q
		FROM unnest($2::int[], $3::bigint[], $4::bigint[]) AS line(p, m, q)
	`, o.ID, positions, items, qtys)
	return o, err
}

func (t *pgTx) Order(ctx context.Context, orderID int64) (game.Order, error) {
	return t.loadOrder(ctx, `SELECT id, user_id, status, created_at, updated_at FROM orders WHERE id = $1`, orderID)
}

func (t *pgTx) LockOrder(ctx context.Context, orderID int64) (game.Order, error) {
	return t.loadOrder(ctx, `SELECT id, user_id, status, created_at, updated_at FROM orders WHERE id = $1 FOR UPDATE`, orderID)
}

func (t *pgTx) loadOrder(ctx context.Context, query string, orderID int64) (game.Order, error) {
	var o game.Order
	var status string
	if err := t.tx.QueryRow(ctx, query, orderID).Scan(&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return o, game.ErrOrderNotFound
		}
		return o, err
	}
	o.Status = game.OrderStatus(status)
	lines, err := t.orderLines(ctx, []int64{o.ID})
	if err != nil {
		return o, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func (t *pgTx) orderLines(ctx context.Context, orderIDs []int64) (map[int64][]game.OrderLine, error) {
	out := make(map[int64][]game.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT order_id, menu_item_id, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID int64
		var l game.OrderLine
		if err := rows.Scan(&orderID, &l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], l)
	}
	return out, rows.Err()
}

func (t *pgTx) TransitionOrder(ctx context.Context, orderID int64, from, to game.OrderStatus) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, orderID, string(from), string(to))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrInvalidOrderState
	}
	return nil
}

func (t *pgTx) ListOrders(ctx context.Context, f game.OrderFilter) ([]game.Order, int64, error) {
	var total int64
	if err := t.tx.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM orders
		WHERE ($1::bigint = 0 OR user_id = $1) AND ($2::text = '' OR status = $2)
	`, f.UserID, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, user_id, status, created_at, updated_at
		FROM orders
		WHERE ($1::bigint = 0 OR user_id = $1) AND ($2::text = '' OR status = $2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4
	`, f.UserID, string(f.Status), f.PerPage, (f.Page-1)*f.PerPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]game.Order, 0, f.PerPage)
	ids := make([]int64, 0, f.PerPage)
	for rows.Next() {
		var o game.Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		o.Status = game.OrderStatus(status)
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	lines, err := t.orderLines(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, total, nil
}

func (t *pgTx) CountOrders(ctx context.Context, userID int64, status game.OrderStatus) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(1) FROM orders WHERE user_id = $1 AND status = $2`, userID, string(status)).Scan(&n)
	return n, err
}

func (t *pgTx) AppendLog(ctx context.Context, e game.LogEntry) (game.LogEntry, error) {
	var amount *string
	if e.Amount.Valid {
		s := e.Amount.Decimal.String()
		amount = &s
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO gamelog (user_id, action_type, message, amount, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING id
	`, e.UserID, e.Kind, e.Message, amount, e.CreatedAt).Scan(&e.ID)
	return e, err
}

func (t *pgTx) History(ctx context.Context, userID int64, limit int) ([]game.LogEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, user_id, action_type, message, amount::text, created_at
		FROM gamelog
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.LogEntry, 0, limit)
	for rows.Next() {
		var e game.LogEntry
		var amount *string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.Message, &amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		if amount != nil {
			d, err := decimal.NewFromString(*amount)
			if err != nil {
				return nil, fmt.Errorf("gamelog %d amount: %w", e.ID, err)
			}
			e.Amount = decimal.NewNullDecimal(d)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const progressQuery = `
	SELECT user_id, total_money_earned::text, total_money_spent::text, total_orders, current_level, updated_at
	FROM player_progress
	WHERE user_id = $1`

func (t *pgTx) Progress(ctx context.Context, userID int64) (game.Progress, bool, error) {
	return scanProgress(t.tx.QueryRow(ctx, progressQuery, userID))
}

func (t *pgTx) LockProgress(ctx context.Context, userID int64) (game.Progress, bool, error) {
	return scanProgress(t.tx.QueryRow(ctx, progressQuery+` FOR UPDATE`, userID))
}

func scanProgress(row pgx.Row) (game.Progress, bool, error) {
	var p game.Progress
	var earned, spent string
	err := row.Scan(&p.UserID, &earned, &spent, &p.TotalOrders, &p.Level, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	if p.TotalEarned, err = decimal.NewFromString(earned); err != nil {
		return p, false, err
	}
	if p.TotalSpent, err = decimal.NewFromString(spent); err != nil {
		return p, false, err
	}
	return p, true, nil
}

// SaveProgress upserts the row. Writers hold the player's user row lock, so
// the first insert for a player cannot race another one.
func (t *pgTx) SaveProgress(ctx context.Context, p game.Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO player_progress (user_id, total_money_earned, total_money_spent, total_orders, current_level, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			total_money_earned = EXCLUDED.total_money_earned,
			total_money_spent = EXCLUDED.total_money_spent,
			total_orders = EXCLUDED.total_orders,
			current_level = GREATEST(player_progress.current_level, EXCLUDED.current_level),
			updated_at = EXCLUDED.updated_at
	`, p.UserID, p.TotalEarned.String(), p.TotalSpent.String(), p.TotalOrders, p.Level, p.UpdatedAt)
	return err
}

func (t *pgTx) GlobalStats(ctx context.Context) (game.GlobalStats, error) {
	var g game.GlobalStats
	var earned, spent string
	err := t.tx.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(1) FROM users),
			COUNT(1) FILTER (WHERE status = 'pending'),
			COUNT(1) FILTER (WHERE status = 'completed'),
			COUNT(1) FILTER (WHERE status = 'cancelled'),
			(SELECT COALESCE(SUM(total_money_earned), 0)::text FROM player_progress),
			(SELECT COALESCE(SUM(total_money_spent), 0)::text FROM player_progress)
		FROM orders
	`).Scan(&g.Players, &g.PendingOrders, &g.CompletedOrders, &g.CancelledOrders, &earned, &spent)
	if err != nil {
		return g, err
	}
	if g.TotalEarned, err = decimal.NewFromString(earned); err != nil {
		return g, err
	}
	g.TotalSpent, err = decimal.NewFromString(spent)
	return g, err
}

func scanUser(row pgx.Row) (game.User, error) {
	var u game.User
	var balance string
	if err := row.Scan(&u.ID, &u.Subject, &u.Username, &u.PasswordHash, &balance, &u.IsAdmin, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return u, game.ErrUserNotFound
		}
		return u, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return u, fmt.Errorf("user %d balance: %w", u.ID, err)
	}
	u.Balance = b
	return u, nil
}

func parsePrices(p *game.Product, purchase, selling string) error {
	var err error
	if p.PurchasePrice, err = decimal.NewFromString(purchase); err != nil {
		return fmt.Errorf("menu item %d purchase price: %w", p.ID, err)
	}
	if p.SellingPrice, err = decimal.NewFromString(selling); err != nil {
		return fmt.Errorf("menu item %d selling price: %w", p.ID, err)
	}
	return nil
}
