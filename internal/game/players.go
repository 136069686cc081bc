package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cafe/internal/money"
)

// EnsurePlayer maps an external identity to a player row, opening a new café
// with the starting balance on first sight.
func (s *Service) EnsurePlayer(ctx context.Context, subject, email, username string) (Caller, error) {
	var out Caller
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return out, ErrUserNotFound
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = usernameFromEmail(email)
	}
	if ValidateUsername(username) != nil {
		username = sanitizeUsername(username)
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.UserBySubject(ctx, subject)
		if err == nil {
			out, err = s.syncAdmin(ctx, tx, u)
			return err
		}
		if !errors.Is(err, ErrUserNotFound) {
			return err
		}

		candidate := username
		for attempt := 0; attempt < 5; attempt++ {
			u, err = tx.CreateUser(ctx, User{
				Subject:  subject,
				Username: candidate,
				Balance:  s.startingBalance,
				IsAdmin:  s.isAdmin(candidate),
			})
			if err == nil {
				out = Caller{UserID: u.ID, Username: u.Username, Admin: u.IsAdmin}
				return nil
			}
			if !errors.Is(err, ErrUsernameTaken) {
				return err
			}
			if existing, lookupErr := tx.UserBySubject(ctx, subject); lookupErr == nil {
				out, err = s.syncAdmin(ctx, tx, existing)
				return err
			}
			candidate = fmt.Sprintf("%s_%d", trimForSuffix(username), attempt+2)
		}
		return ErrUsernameTaken
	})
	return out, err
}

// RegisterLocal opens a café for a username/password account. The hash is
// produced by the caller; the game never sees plaintext passwords.
func (s *Service) RegisterLocal(ctx context.Context, username, passwordHash string) (User, error) {
	var out User
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return out, err
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.CreateUser(ctx, User{
			Subject:      "local:" + strings.ToLower(username),
			Username:     username,
			PasswordHash: passwordHash,
			Balance:      s.startingBalance,
			IsAdmin:      s.isAdmin(username),
		})
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err == nil {
		s.log.Info("player registered", "user_id", out.ID, "username", out.Username)
	}
	return out, err
}

// Credentials returns the stored account for a local login.
func (s *Service) Credentials(ctx context.Context, username string) (User, error) {
	var out User
	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.UserByUsername(ctx, strings.TrimSpace(username))
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

func (s *Service) Player(ctx context.Context, userID int64) (PlayerView, error) {
	var out PlayerView
	err := s.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.User(ctx, userID)
		if err != nil {
			return err
		}
		out = PlayerView{ID: u.ID, Username: u.Username, Balance: money.A(u.Balance), Admin: u.IsAdmin}
		return nil
	})
	return out, err
}

// Players lists every registered player, oldest first.
func (s *Service) Players(ctx context.Context) ([]PlayerView, error) {
	var out []PlayerView
	err := s.store.InTx(ctx, func(tx Tx) error {
		users, err := tx.Users(ctx)
		if err != nil {
			return err
		}
		out = make([]PlayerView, 0, len(users))
		for _, u := range users {
			out = append(out, PlayerView{ID: u.ID, Username: u.Username, Balance: money.A(u.Balance), Admin: u.IsAdmin})
		}
		return nil
	})
	return out, err
}

// AdminPlayers is Players for the admin surface.
func (s *Service) AdminPlayers(ctx context.Context, caller Caller) ([]PlayerView, error) {
	if !caller.Admin {
		return nil, ErrAdminOnly
	}
	return s.Players(ctx)
}

// AddProduct puts a new item on the shared menu.
func (s *Service) AddProduct(ctx context.Context, caller Caller, in AddProductInput) (MenuItemView, error) {
	var out MenuItemView
	if !caller.Admin {
		return out, ErrAdminOnly
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validateProduct(in.Name, in.PurchasePrice, in.SellingPrice); err != nil {
		return out, err
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.CreateProduct(ctx, Product{Name: in.Name, PurchasePrice: in.PurchasePrice, SellingPrice: in.SellingPrice})
		if err != nil {
			return err
		}
		out = menuItemView(p)
		return nil
	})
	if err == nil {
		s.log.Info("menu item added", "item_id", out.ID, "name", out.Name, "by", caller.Username)
	}
	return out, err
}

var defaultMenu = []struct {
	Name     string
	Purchase string
	Selling  string
}{
	{"Café", "1.00", "1.20"},
	{"Thé", "0.80", "1.00"},
	{"Latte", "1.50", "3.00"},
	{"Croissant", "0.60", "1.50"},
	{"Muffin", "1.00", "2.50"},
	{"Chocolat chaud", "1.20", "2.80"},
}

// SeedMenu fills an empty menu with the house items. A menu that already has
// items is left alone.
func (s *Service) SeedMenu(ctx context.Context) (int, error) {
	added := 0
	err := s.store.InTx(ctx, func(tx Tx) error {
		added = 0
		existing, err := tx.Products(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		for _, row := range defaultMenu {
			p := Product{Name: row.Name, PurchasePrice: money.MustParse(row.Purchase), SellingPrice: money.MustParse(row.Selling)}
			if _, err := tx.CreateProduct(ctx, p); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	return added, err
}

func (s *Service) isAdmin(username string) bool {
	return s.admins[strings.ToLower(username)]
}

func (s *Service) syncAdmin(ctx context.Context, tx Tx, u User) (Caller, error) {
	if s.isAdmin(u.Username) && !u.IsAdmin {
		if err := tx.SetAdmin(ctx, u.ID, true); err != nil {
			return Caller{}, err
		}
		u.IsAdmin = true
	}
	return Caller{UserID: u.ID, Username: u.Username, Admin: u.IsAdmin}, nil
}

func trimForSuffix(name string) string {
	if len(name) > 21 {
		return name[:21]
	}
	return name
}
