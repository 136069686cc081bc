package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cl "cafe/internal/cli"
	"cafe/internal/config"
	"cafe/internal/game"
	"cafe/internal/syncq"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "cafe",
		Short:        "Run your café from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newMenuCmd(&apiBase),
		newStockCmd(&apiBase),
		newRestockCmd(&apiBase),
		newOrdersCmd(&apiBase),
		newHistoryCmd(&apiBase),
		newStatsCmd(&apiBase),
		newShiftCmd(&apiBase),
		newSyncCmd(&apiBase),
		newAdminCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, err
	}
	if sess.Expired(time.Now()) {
		return cl.Session{}, errors.New("session expired, run `cafe login` again")
	}
	return sess, nil
}

func saveToken(tokenUser, email string, expiresIn int, accessToken string) error {
	sess := cl.Session{AccessToken: accessToken, Username: tokenUser, Email: email}
	if expiresIn > 0 {
		sess.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second).UTC()
	}
	return cl.SaveSession(sess)
}

func newSignupCmd(apiBase *string) *cobra.Command {
	var withEmail bool
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Open a new café",
		RunE: func(cmd *cobra.Command, args []string) error {
			var email string
			var err error
			if withEmail {
				if email, err = promptRequired("Email"); err != nil {
					return err
				}
			}
			username, err := promptUsername("Café name (username)", withEmail)
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			tok, err := newClient(apiBase).Signup(ctx, email, username, password)
			if err != nil {
				return err
			}
			if strings.TrimSpace(tok.AccessToken) == "" {
				printWarn("Account created. Confirm your email, then run `cafe login --email`.")
				return nil
			}
			if tok.Username != "" {
				username = tok.Username
			}
			if err := saveToken(username, email, tok.ExpiresIn, tok.AccessToken); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Welcome %s! Your register holds %s.", username, game.StarterBalance.StringFixed(2)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&withEmail, "email", false, "sign up with an email address (hosted accounts)")
	return cmd
}

func newLoginCmd(apiBase *string) *cobra.Command {
	var withEmail bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to your café",
		RunE: func(cmd *cobra.Command, args []string) error {
			var email, username string
			var err error
			if withEmail {
				email, err = promptRequired("Email")
			} else {
				username, err = promptRequired("Username")
			}
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			tok, err := newClient(apiBase).Login(ctx, email, username, password)
			if err != nil {
				return err
			}
			if tok.Username != "" {
				username = tok.Username
			}
			if err := saveToken(username, email, tok.ExpiresIn, tok.AccessToken); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&withEmail, "email", false, "log in with an email address (hosted accounts)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newMenuCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Show the menu with buy and sell prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			items, err := newClient(apiBase).Menu(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderMenu(items)
			return nil
		},
	}
}

func newStockCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "stock",
		Short:   "Show your inventory",
		Aliases: []string{"inventory"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Inventory(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderInventory(rows)
			return nil
		},
	}
}

func newRestockCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restock [item_id] [quantity]",
		Short: "Buy units of a menu item at purchase price",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			itemID, err := int64FromArgOrPrompt(args, 0, "Item id")
			if err != nil {
				return err
			}
			qty, err := int64FromArgOrPrompt(args, 1, "Quantity")
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Restock(ctx, sess.AccessToken, itemID, qty, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.NewCommand(http.MethodPost, cl.RestockPath, cl.RestockBody(itemID, qty), idem))
			}
			printSuccess(fmt.Sprintf("Bought %d x %s for %s. Balance: %s", out.Quantity, out.Name, out.Cost, out.Balance))
			return nil
		},
	}
}

func newOrdersCmd(apiBase *string) *cobra.Command {
	orders := &cobra.Command{
		Use:     "orders",
		Short:   "Customer orders",
		Aliases: []string{"order"},
	}

	var status string
	var page int
	list := &cobra.Command{
		Use:   "list",
		Short: "List your orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListOrders(ctx, sess.AccessToken, status, page)
			if err != nil {
				return err
			}
			renderOrders(out)
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "pending, completed or cancelled")
	list.Flags().IntVar(&page, "page", 1, "page number")

	orders.AddCommand(list)
	orders.AddCommand(&cobra.Command{
		Use:   "new ITEM_ID:QTY...",
		Short: "Take an order by hand",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			lines, err := parseLines(args)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CreateOrder(ctx, sess.AccessToken, lines, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.NewCommand(http.MethodPost, "/v1/orders", map[string]any{"items": linesBody(lines)}, idem))
			}
			renderOrder(out)
			return nil
		},
	})
	orders.AddCommand(&cobra.Command{
		Use:   "show ORDER_ID",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			id, err := int64FromArgOrPrompt(args, 0, "Order id")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).GetOrder(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			renderOrder(out)
			return nil
		},
	})
	orders.AddCommand(&cobra.Command{
		Use:   "complete [order_id]",
		Short: "Serve a pending order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			id, err := int64FromArgOrPrompt(args, 0, "Order id")
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CompleteOrder(ctx, sess.AccessToken, id, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.NewCommand(http.MethodPatch, cl.CompletePath(id), nil, idem))
			}
			renderCompletion(out)
			return nil
		},
	})
	orders.AddCommand(&cobra.Command{
		Use:   "cancel [order_id]",
		Short: "Turn a pending order away",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			id, err := int64FromArgOrPrompt(args, 0, "Order id")
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := newClient(apiBase).CancelOrder(ctx, sess.AccessToken, id, idem); err != nil {
				return queueOnNetworkError(err, syncq.NewCommand(http.MethodPatch, cl.CancelPath(id), nil, idem))
			}
			printWarn(fmt.Sprintf("Order #%d cancelled.", id))
			return nil
		},
	})
	return orders
}

func newHistoryCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show your recent actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).History(ctx, sess.AccessToken, limit)
			if err != nil {
				return err
			}
			renderHistory(rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "entries to show")
	return cmd
}

func newStatsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "stats",
		Short:   "Show balance, profit and level progress",
		Aliases: []string{"dash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Stats(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderStats(out)
			return nil
		},
	}
}

func newShiftCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "shift",
		Short: "Work the counter: serve or cancel pending orders live",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			return runShift(cmd.Context(), newClient(apiBase), sess)
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay commands queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := openQueue()
			if err != nil {
				return err
			}
			pending, err := queue.Load()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			res, err := queue.Replay(ctx, queueSender{client: newClient(apiBase), token: sess.AccessToken})
			if err != nil {
				return err
			}
			for _, r := range res.Rejected {
				printError(fmt.Sprintf("Dropped %s %s: %v", r.Command.Method, r.Command.Path, r.Err))
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", len(res.Applied), len(res.Rejected), res.Pending))
			return nil
		},
	}
}

func newAdminCmd(apiBase *string) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manager commands",
	}
	admin.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show numbers for the whole game",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).AdminStats(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderGlobalStats(out)
			return nil
		},
	})
	admin.AddCommand(&cobra.Command{
		Use:   "players",
		Short: "List every café",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			players, err := newClient(apiBase).AdminPlayers(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderPlayers(players)
			return nil
		},
	})
	admin.AddCommand(&cobra.Command{
		Use:   "add-item NAME PURCHASE_PRICE SELLING_PRICE",
		Short: "Put a new item on the menu",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			item, err := newClient(apiBase).AdminAddItem(ctx, sess.AccessToken, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Added #%d %s (buy %s, sell %s).", item.ID, item.Name, item.PurchasePrice, item.SellingPrice))
			return nil
		},
	})
	return admin
}

func openQueue() (*syncq.Queue, error) {
	dir, err := cl.BaseDir()
	if err != nil {
		return nil, err
	}
	return syncq.Open(dir)
}

type queueSender struct {
	client *cl.Client
	token  string
}

func (s queueSender) Send(ctx context.Context, cmd syncq.Command) error {
	_, err := s.client.Do(ctx, cmd.Method, cmd.Path, s.token, cmd.Body, cmd.IdempotencyKey)
	return err
}

func (s queueSender) Offline(err error) bool { return cl.IsOffline(err) }

// queueOnNetworkError parks a command that never reached the server. Answers
// from the server are returned as they are.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil || !cl.IsOffline(err) {
		return err
	}
	queue, qerr := openQueue()
	if qerr == nil {
		qerr = queue.Push(cmd)
	}
	if qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn(fmt.Sprintf("Server unreachable; queued %s %s. Run `cafe sync` later.", cmd.Method, cmd.Path))
	return nil
}

func parseLines(args []string) ([]game.LineInput, error) {
	lines := make([]game.LineInput, 0, len(args))
	for _, arg := range args {
		idRaw, qtyRaw, ok := strings.Cut(strings.TrimSpace(arg), ":")
		if !ok {
			qtyRaw = "1"
		}
		id, err := strconv.ParseInt(idRaw, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item %q, want ITEM_ID:QTY", arg)
		}
		qty, err := strconv.ParseInt(qtyRaw, 10, 64)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("invalid quantity in %q", arg)
		}
		lines = append(lines, game.LineInput{ProductID: id, Quantity: qty})
	}
	return lines, nil
}

func linesBody(lines []game.LineInput) []map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		out = append(out, map[string]any{"item_id": l.ProductID, "quantity": l.Quantity})
	}
	return out
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.TrimSpace(args[idx]), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1)
}
