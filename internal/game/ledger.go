package game

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActionOrderCreated   = "order_created"
	ActionOrderCompleted = "order_completed"
	ActionOrderCancelled = "order_cancelled"
	ActionRestock        = "restock"
	ActionLevelUp        = "level_up"
)

// ProgressDelta is what one log entry contributes to a player's totals.
type ProgressDelta struct {
	Earned decimal.Decimal
	Spent  decimal.Decimal
	Orders int64
}

func (d ProgressDelta) Add(o ProgressDelta) ProgressDelta {
	return ProgressDelta{
		Earned: d.Earned.Add(o.Earned),
		Spent:  d.Spent.Add(o.Spent),
		Orders: d.Orders + o.Orders,
	}
}

func (d ProgressDelta) IsZero() bool {
	return d.Earned.IsZero() && d.Spent.IsZero() && d.Orders == 0
}

// Folder maps a log entry to its effect on progress.
type Folder interface {
	Apply(e LogEntry) ProgressDelta
}

// FolderFunc adapts a plain function to Folder.
type FolderFunc func(e LogEntry) ProgressDelta

func (f FolderFunc) Apply(e LogEntry) ProgressDelta { return f(e) }

// AmountFolder credits positive amounts to earnings and negative amounts to
// spending, whatever the entry kind. Order counts are not derived from
// entries: a completion may log several lines but counts once.
type AmountFolder struct{}

func (AmountFolder) Apply(e LogEntry) ProgressDelta {
	d := ProgressDelta{Earned: decimal.Zero, Spent: decimal.Zero}
	if !e.Amount.Valid {
		return d
	}
	switch e.Amount.Decimal.Sign() {
	case 1:
		d.Earned = e.Amount.Decimal
	case -1:
		d.Spent = e.Amount.Decimal.Abs()
	}
	return d
}

type ledger struct {
	folder Folder
	now    func() time.Time
}

// journal collects the log entries of one unit of work and writes the
// resulting progress once, when flushed.
type journal struct {
	ledger  ledger
	tx      Tx
	userID  int64
	delta   ProgressDelta
	entries []LogEntry
}

func (l ledger) begin(tx Tx, userID int64) *journal {
	return &journal{
		ledger: l,
		tx:     tx,
		userID: userID,
		delta:  ProgressDelta{Earned: decimal.Zero, Spent: decimal.Zero},
	}
}

// Record appends an entry. A zero amount is stored as null.
func (j *journal) Record(ctx context.Context, kind, message string, amount decimal.Decimal) error {
	e := LogEntry{
		UserID:    j.userID,
		Kind:      kind,
		Message:   message,
		CreatedAt: j.ledger.now().UTC(),
	}
	if !amount.IsZero() {
		e.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
	}
	saved, err := j.tx.AppendLog(ctx, e)
	if err != nil {
		return fmt.Errorf("append %s log: %w", kind, err)
	}
	j.entries = append(j.entries, saved)
	j.delta = j.delta.Add(j.ledger.folder.Apply(saved))
	return nil
}

// Count adds a contribution that has no log entry of its own.
func (j *journal) Count(d ProgressDelta) {
	j.delta = j.delta.Add(d)
}

type flushResult struct {
	Progress  Progress
	Touched   bool
	LevelUp   bool
	PrevLevel int
}

// Flush folds the accumulated delta into the player's progress. Nothing is
// written when no entry carried an amount. Levels never go down.
func (j *journal) Flush(ctx context.Context) (flushResult, error) {
	var out flushResult
	if j.delta.IsZero() {
		return out, nil
	}
	p, ok, err := j.tx.LockProgress(ctx, j.userID)
	if err != nil {
		return out, fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		p = newProgress(j.userID)
	}
	out.PrevLevel = p.Level
	p.TotalEarned = p.TotalEarned.Add(j.delta.Earned)
	p.TotalSpent = p.TotalSpent.Add(j.delta.Spent)
	p.TotalOrders += j.delta.Orders
	if lvl := LevelFor(p.TotalEarned, p.TotalOrders); lvl > p.Level {
		p.Level = lvl
	}
	p.UpdatedAt = j.ledger.now().UTC()
	if err := j.tx.SaveProgress(ctx, p); err != nil {
		return out, fmt.Errorf("save progress: %w", err)
	}
	j.delta = ProgressDelta{Earned: decimal.Zero, Spent: decimal.Zero}
	out.Progress = p
	out.Touched = true
	if p.Level > out.PrevLevel {
		out.LevelUp = true
		msg := fmt.Sprintf("BRAVO! Niveau %d atteint !", p.Level)
		if err := j.Record(ctx, ActionLevelUp, msg, decimal.Zero); err != nil {
			return out, err
		}
	}
	return out, nil
}
