package game

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafe/internal/money"
)

func fixedClock() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

func TestAmountFolder(t *testing.T) {
	f := AmountFolder{}
	earn := f.Apply(LogEntry{Kind: ActionOrderCompleted, Amount: decimal.NewNullDecimal(money.MustParse("6.00"))})
	assert.True(t, earn.Earned.Equal(money.MustParse("6")))
	assert.True(t, earn.Spent.IsZero())
	assert.Zero(t, earn.Orders)

	spend := f.Apply(LogEntry{Kind: ActionRestock, Amount: decimal.NewNullDecimal(money.MustParse("-5.00"))})
	assert.True(t, spend.Spent.Equal(money.MustParse("5")))
	assert.True(t, spend.Earned.IsZero())

	info := f.Apply(LogEntry{Kind: ActionOrderCreated})
	assert.True(t, info.IsZero())
}

func TestAmountFolderIgnoresKind(t *testing.T) {
	f := AmountFolder{}
	tip := f.Apply(LogEntry{Kind: "tip", Amount: decimal.NewNullDecimal(money.MustParse("0.50"))})
	assert.True(t, tip.Earned.Equal(money.MustParse("0.5")))
	assert.True(t, tip.Spent.IsZero())

	refund := f.Apply(LogEntry{Kind: ActionOrderCancelled, Amount: decimal.NewNullDecimal(money.MustParse("2.00"))})
	assert.True(t, refund.Earned.Equal(money.MustParse("2")))

	fee := f.Apply(LogEntry{Kind: ActionLevelUp, Amount: decimal.NewNullDecimal(money.MustParse("-1.25"))})
	assert.True(t, fee.Spent.Equal(money.MustParse("1.25")))
	assert.True(t, fee.Earned.IsZero())
}

func TestJournalWritesProgressOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := ledger{folder: AmountFolder{}, now: fixedClock}

	err := store.InTx(ctx, func(tx Tx) error {
		j := l.begin(tx, 7)
		require.NoError(t, j.Record(ctx, ActionOrderCompleted, "a", money.MustParse("3.00")))
		require.NoError(t, j.Record(ctx, ActionOrderCompleted, "b", money.MustParse("2.50")))
		j.Count(ProgressDelta{Earned: decimal.Zero, Spent: decimal.Zero, Orders: 1})
		res, err := j.Flush(ctx)
		require.NoError(t, err)
		assert.True(t, res.Touched)
		assert.False(t, res.LevelUp)
		return nil
	})
	require.NoError(t, err)

	p, ok := store.ProgressOf(7)
	require.True(t, ok)
	assert.Equal(t, "5.50", money.Format(p.TotalEarned))
	assert.Equal(t, int64(1), p.TotalOrders)
	assert.Equal(t, 1, p.Level)
	assert.Len(t, store.Logs(7), 2)
}

func TestJournalSkipsProgressForInformationalEntries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := ledger{folder: AmountFolder{}, now: fixedClock}

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		j := l.begin(tx, 3)
		if err := j.Record(ctx, ActionOrderCreated, "Order #1: 1 x Café", decimal.Zero); err != nil {
			return err
		}
		_, err := j.Flush(ctx)
		return err
	}))

	_, ok := store.ProgressOf(3)
	assert.False(t, ok, "no progress row for amount-less entries")
	logs := store.Logs(3)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Amount.Valid)
}

func TestJournalLevelUpNeverDecreases(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := ledger{folder: AmountFolder{}, now: fixedClock}

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.SaveProgress(ctx, Progress{UserID: 1, TotalEarned: decimal.NewFromInt(95), TotalSpent: decimal.Zero, TotalOrders: 9, Level: 1})
	}))

	var res flushResult
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		j := l.begin(tx, 1)
		if err := j.Record(ctx, ActionOrderCompleted, "sale", decimal.NewFromInt(10)); err != nil {
			return err
		}
		j.Count(ProgressDelta{Earned: decimal.Zero, Spent: decimal.Zero, Orders: 1})
		var err error
		res, err = j.Flush(ctx)
		return err
	}))
	assert.True(t, res.LevelUp)
	assert.Equal(t, 2, res.Progress.Level)

	logs := store.Logs(1)
	require.Len(t, logs, 2)
	assert.Equal(t, ActionLevelUp, logs[1].Kind)
	assert.Equal(t, "BRAVO! Niveau 2 atteint !", logs[1].Message)

	// A stored level above the table's answer is kept.
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.SaveProgress(ctx, Progress{UserID: 2, TotalEarned: decimal.Zero, TotalSpent: decimal.Zero, Level: 4})
	}))
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		j := l.begin(tx, 2)
		if err := j.Record(ctx, ActionRestock, "buy", decimal.NewFromInt(-1)); err != nil {
			return err
		}
		_, err := j.Flush(ctx)
		return err
	}))
	p, _ := store.ProgressOf(2)
	assert.Equal(t, 4, p.Level)
	assert.Equal(t, "1.00", money.Format(p.TotalSpent))
}

func TestCustomFolder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	double := FolderFunc(func(e LogEntry) ProgressDelta {
		d := AmountFolder{}.Apply(e)
		d.Earned = d.Earned.Mul(decimal.NewFromInt(2))
		return d
	})
	l := ledger{folder: double, now: fixedClock}
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		j := l.begin(tx, 5)
		if err := j.Record(ctx, ActionOrderCompleted, "sale", decimal.NewFromInt(4)); err != nil {
			return err
		}
		_, err := j.Flush(ctx)
		return err
	}))
	p, _ := store.ProgressOf(5)
	assert.Equal(t, "8.00", money.Format(p.TotalEarned))
}
