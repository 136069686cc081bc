package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"cafe/internal/money"
)

const (
	// LowStockThreshold flags inventory rows that need a restock.
	LowStockThreshold = int64(10)

	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxHistory      = 200
	MaxOrderLines   = 50
	MaxLineQuantity = int64(10000)
)

// StarterBalance is what a new player's register holds.
var StarterBalance = money.MustParse("1000.00")

// ErrNotFound matches every missing-row error below.
var ErrNotFound = errors.New("not found")

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

var (
	ErrOrderNotFound         error = &notFoundError{"Order not found"}
	ErrProductNotFound       error = &notFoundError{"Item not found"}
	ErrUserNotFound          error = &notFoundError{"user not found"}
	ErrForbidden                   = errors.New("Not your order")
	ErrAdminOnly                   = errors.New("admin access required")
	ErrInvalidOrderState           = errors.New("Order is not pending")
	ErrInsufficientStock           = errors.New("Not enough stock")
	ErrInsufficientFunds           = errors.New("Pas assez d'argent")
	ErrInvalidQuantity             = errors.New("quantity must be > 0")
	ErrEmptyOrder                  = errors.New("order needs at least one line")
	ErrTooManyLines                = errors.New("too many order lines")
	ErrOrderProcessingFailed       = errors.New("order processing failed")
	ErrDuplicateIdempotency        = errors.New("duplicate idempotency key")
	ErrDuplicateProduct            = errors.New("menu item already exists")
	ErrUsernameTaken               = errors.New("username already taken")
	ErrTxConflict                  = errors.New("transaction conflict, retry")
	ErrInvalidProduct              = errors.New("invalid menu item")
	ErrInvalidUsername             = errors.New("username must be 3-24 chars of letters, digits or _")
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

var blockedNameFragments = []string{
	"admin",
	"shit",
	"fuck",
	"nazi",
}

func ValidateUsername(username string) error {
	if !usernameRE.MatchString(strings.TrimSpace(username)) {
		return ErrInvalidUsername
	}
	return nil
}

func validateProduct(name string, purchase, selling decimal.Decimal) error {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if len(clean) > 64 {
		return fmt.Errorf("%w: name too long (max 64 chars)", ErrInvalidProduct)
	}
	lower := strings.ToLower(clean)
	for _, fragment := range blockedNameFragments {
		if strings.Contains(lower, fragment) {
			return fmt.Errorf("%w: name contains blocked content", ErrInvalidProduct)
		}
	}
	if money.CheckPrice(purchase) != nil || money.CheckPrice(selling) != nil {
		return fmt.Errorf("%w: prices must be > 0", ErrInvalidProduct)
	}
	if !purchase.Equal(money.Round(purchase)) || !selling.Equal(money.Round(selling)) {
		return fmt.Errorf("%w: prices have at most %d decimals", ErrInvalidProduct, money.Scale)
	}
	return nil
}

func usernameFromEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "barista"
	}
	return sanitizeUsername(local)
}

func sanitizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "barista"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	res := strings.Trim(string(out), "_")
	if len(res) < 3 {
		res = "barista_" + res
	}
	if len(res) > 24 {
		res = res[:24]
	}
	return res
}

// processingFailed marks an error hit after validation passed; the caller's
// unit of work is rolled back so nothing it touched is kept.
func processingFailed(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderProcessingFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrOrderProcessingFailed, err)
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	return page, perPage
}
