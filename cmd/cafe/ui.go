package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"cafe/internal/game"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Fprintln(os.Stderr, msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func promptUsername(label string, optional bool) (string, error) {
	for {
		var name string
		var err error
		if optional {
			name, err = promptOptional(label + " (optional)")
		} else {
			name, err = promptRequired(label)
		}
		if err != nil {
			return "", err
		}
		if name == "" && optional {
			return "", nil
		}
		if err := game.ValidateUsername(name); err != nil {
			printWarn(err.Error())
			continue
		}
		return name, nil
	}
}

// promptPassword hides input on a terminal and falls back to a plain read
// when stdin is piped.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if pw := strings.TrimSpace(string(raw)); pw != "" {
			return pw, nil
		}
		printWarn(label + " is required.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderMenu(items []game.MenuItemView) {
	accent.Println("\n== MENU ==")
	if len(items) == 0 {
		printInfo("The menu is empty.")
		return
	}
	fmt.Printf("%-5s %-22s %10s %10s %10s\n", "ID", "ITEM", "BUY", "SELL", "MARGIN")
	for _, it := range items {
		fmt.Printf("%-5d %-22s %10s %10s %10s\n", it.ID, truncate(it.Name, 22), it.PurchasePrice, it.SellingPrice, success.Sprint(it.Margin))
	}
	fmt.Println()
}

func renderInventory(rows []game.InventoryView) {
	accent.Println("\n== STOCK ==")
	fmt.Printf("%-5s %-22s %8s\n", "ID", "ITEM", "QTY")
	low := 0
	for _, r := range rows {
		qty := strconv.FormatInt(r.Quantity, 10)
		if r.Low {
			qty = warn.Sprint(qty)
			low++
		}
		fmt.Printf("%-5d %-22s %8s\n", r.ProductID, truncate(r.Name, 22), qty)
	}
	if low > 0 {
		printWarn(fmt.Sprintf("%d item(s) below %d units. Time to restock.", low, game.LowStockThreshold))
	}
	fmt.Println()
}

func renderOrders(page game.OrderPage) {
	accent.Printf("\n== ORDERS (page %d/%d, %d total) ==\n", page.Page, max(page.TotalPages, 1), page.Total)
	if len(page.Orders) == 0 {
		printInfo("No orders.")
		return
	}
	fmt.Printf("%-6s %-10s %10s  %s\n", "ID", "STATUS", "TOTAL", "ITEMS")
	for _, o := range page.Orders {
		fmt.Printf("%-6d %-10s %10s  %s\n", o.ID, colorStatus(o.Status), o.Total, summarizeLines(o.Lines))
	}
	fmt.Println()
}

func renderOrder(o game.OrderView) {
	accent.Printf("\n== ORDER #%d ==\n", o.ID)
	fmt.Printf("Status:  %s\n", colorStatus(o.Status))
	fmt.Printf("Placed:  %s\n", o.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("%-22s %6s %10s %10s\n", "ITEM", "QTY", "PRICE", "TOTAL")
	for _, l := range o.Lines {
		fmt.Printf("%-22s %6d %10s %10s\n", truncate(l.Name, 22), l.Quantity, l.UnitPrice, l.Total)
	}
	fmt.Printf("%-22s %6s %10s %10s\n\n", "", "", "", o.Total)
}

func renderCompletion(r game.CompleteResult) {
	printSuccess(fmt.Sprintf("Order #%d served: +%s. Balance: %s", r.OrderID, r.Revenue, r.Balance))
	if r.LevelUp {
		success.Printf("BRAVO! Niveau %d atteint !\n", r.Level)
	}
}

func renderHistory(rows []game.HistoryEntry) {
	accent.Println("\n== HISTORY ==")
	if len(rows) == 0 {
		printInfo("Nothing yet.")
		return
	}
	for _, h := range rows {
		amount := ""
		if h.Amount != nil {
			amount = colorAmount(h.Amount.String())
		}
		fmt.Printf("%s  %-16s %-44s %s\n", h.CreatedAt.Local().Format("01-02 15:04"), h.Kind, truncate(h.Message, 44), amount)
	}
	fmt.Println()
}

func renderStats(s game.PlayerStats) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(s.Username))
	fmt.Printf("Balance:        %s\n", s.Balance)
	fmt.Printf("Earned:         %s\n", s.Progress.TotalEarned)
	fmt.Printf("Spent:          %s\n", s.Progress.TotalSpent)
	fmt.Printf("Profit:         %s\n", colorAmount(s.Profit.String()))
	fmt.Printf("Orders served:  %d\n", s.Progress.TotalOrders)
	fmt.Printf("Pending:        %d\n", s.Pending)
	fmt.Printf("Level:          %d\n", s.Progress.Level)
	next := s.Progress.Next
	if next.MaxLevelReached {
		success.Println("Max level reached.")
	} else {
		fmt.Printf("Next level %d:   %s earned (%.1f%%), %d orders (%.1f%%)\n",
			next.Level, next.RequiredEarned, next.EarnedPercent, next.RequiredOrders, next.OrdersPercent)
	}
	if len(s.LowStock) > 0 {
		printWarn("Low stock: " + strings.Join(s.LowStock, ", "))
	}
	fmt.Println()
}

func renderGlobalStats(g game.GlobalStatsView) {
	accent.Println("\n== GAME ==")
	fmt.Printf("Players:    %d\n", g.Players)
	fmt.Printf("Pending:    %d\n", g.PendingOrders)
	fmt.Printf("Completed:  %d\n", g.CompletedOrders)
	fmt.Printf("Cancelled:  %d\n", g.CancelledOrders)
	fmt.Printf("Earned:     %s\n", g.TotalEarned)
	fmt.Printf("Spent:      %s\n\n", g.TotalSpent)
}

func renderPlayers(players []game.PlayerView) {
	accent.Println("\n== PLAYERS ==")
	fmt.Printf("%-5s %-22s %12s\n", "ID", "CAFE", "BALANCE")
	for _, p := range players {
		name := truncate(p.Username, 22)
		if p.Admin {
			name = warn.Sprint(name)
		}
		fmt.Printf("%-5d %-22s %12s\n", p.ID, name, p.Balance)
	}
	fmt.Println()
}

func colorStatus(s game.OrderStatus) string {
	switch s {
	case game.StatusCompleted:
		return success.Sprint(s)
	case game.StatusCancelled:
		return danger.Sprint(s)
	default:
		return warn.Sprint(s)
	}
}

func colorAmount(v string) string {
	if strings.HasPrefix(v, "-") {
		return danger.Sprint(v)
	}
	return success.Sprint(v)
}

func summarizeLines(lines []game.OrderLineView) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%dx %s", l.Quantity, l.Name))
	}
	return truncate(strings.Join(parts, ", "), 48)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
