package game

import (
	"github.com/shopspring/decimal"

	"cafe/internal/money"
)

// Tier is the pair of thresholds a player must meet to hold a level.
type Tier struct {
	Level     int
	MinEarned decimal.Decimal
	MinOrders int64
}

// Tiers is ordered by level.
var Tiers = []Tier{
	{Level: 1, MinEarned: decimal.Zero, MinOrders: 0},
	{Level: 2, MinEarned: decimal.NewFromInt(100), MinOrders: 10},
	{Level: 3, MinEarned: decimal.NewFromInt(500), MinOrders: 50},
	{Level: 4, MinEarned: decimal.NewFromInt(2000), MinOrders: 200},
	{Level: 5, MinEarned: decimal.NewFromInt(10000), MinOrders: 1000},
}

func MaxLevel() int { return Tiers[len(Tiers)-1].Level }

// LevelFor returns the highest level whose thresholds are both met.
func LevelFor(earned decimal.Decimal, orders int64) int {
	for i := len(Tiers) - 1; i >= 0; i-- {
		t := Tiers[i]
		if earned.GreaterThanOrEqual(t.MinEarned) && orders >= t.MinOrders {
			return t.Level
		}
	}
	return Tiers[0].Level
}

type NextLevel struct {
	Level           int          `json:"level"`
	RequiredEarned  money.Amount `json:"required_money"`
	RequiredOrders  int64        `json:"required_orders"`
	EarnedPercent   float64      `json:"money_percent"`
	OrdersPercent   float64      `json:"orders_percent"`
	MaxLevelReached bool         `json:"max_level_reached"`
}

// NextLevelFor reports how far p is from the level above its current one.
func NextLevelFor(p Progress) NextLevel {
	if p.Level >= MaxLevel() {
		top := Tiers[len(Tiers)-1]
		return NextLevel{
			Level:           top.Level,
			RequiredEarned:  money.A(top.MinEarned),
			RequiredOrders:  top.MinOrders,
			EarnedPercent:   100,
			OrdersPercent:   100,
			MaxLevelReached: true,
		}
	}
	next := Tiers[0]
	for _, t := range Tiers {
		if t.Level == p.Level+1 {
			next = t
			break
		}
	}
	return NextLevel{
		Level:          next.Level,
		RequiredEarned: money.A(next.MinEarned),
		RequiredOrders: next.MinOrders,
		EarnedPercent:  percentOf(p.TotalEarned, next.MinEarned),
		OrdersPercent:  percentOf(decimal.NewFromInt(p.TotalOrders), decimal.NewFromInt(next.MinOrders)),
	}
}

func percentOf(have, need decimal.Decimal) float64 {
	if !need.IsPositive() {
		return 100
	}
	pct := have.Div(need).Mul(decimal.NewFromInt(100))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return 100
	}
	f, _ := pct.Round(1).Float64()
	return f
}
