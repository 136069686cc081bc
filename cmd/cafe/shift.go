package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	cl "cafe/internal/cli"
	"cafe/internal/game"
)

var (
	shiftTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	shiftOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	shiftBad    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	shiftHelp   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	shiftBorder = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

type ordersLoadedMsg struct {
	page game.OrderPage
}

type actionDoneMsg struct {
	text   string
	served bool
}

type shiftErrMsg struct {
	err error
}

// shiftModel is the interactive counter: pending orders in a table, served or
// refused one at a time.
type shiftModel struct {
	ctx     context.Context
	client  *cl.Client
	session cl.Session
	table   table.Model
	status  string
	failed  bool
	busy    bool
	served  int
	refused int
}

func newShiftModel(ctx context.Context, client *cl.Client, sess cl.Session) shiftModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 6},
			{Title: "ITEMS", Width: 44},
			{Title: "TOTAL", Width: 10},
			{Title: "PLACED", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return shiftModel{ctx: ctx, client: client, session: sess, table: t, status: "Loading orders..."}
}

func (m shiftModel) Init() tea.Cmd {
	return m.load()
}

func (m shiftModel) load() tea.Cmd {
	return func() tea.Msg {
		page, err := m.client.ListOrders(m.ctx, m.session.AccessToken, string(game.StatusPending), 1)
		if err != nil {
			return shiftErrMsg{err: err}
		}
		return ordersLoadedMsg{page: page}
	}
}

func (m shiftModel) complete(orderID int64) tea.Cmd {
	return func() tea.Msg {
		out, err := m.client.CompleteOrder(m.ctx, m.session.AccessToken, orderID, uuid.NewString())
		if err != nil {
			return shiftErrMsg{err: err}
		}
		text := fmt.Sprintf("Order #%d served: +%s. Balance: %s", out.OrderID, out.Revenue, out.Balance)
		if out.LevelUp {
			text += fmt.Sprintf("  BRAVO! Niveau %d atteint !", out.Level)
		}
		return actionDoneMsg{text: text, served: true}
	}
}

func (m shiftModel) cancel(orderID int64) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.client.CancelOrder(m.ctx, m.session.AccessToken, orderID, uuid.NewString()); err != nil {
			return shiftErrMsg{err: err}
		}
		return actionDoneMsg{text: fmt.Sprintf("Order #%d cancelled.", orderID)}
	}
}

func (m shiftModel) selectedID() (int64, bool) {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(row[0], 10, 64)
	return id, err == nil
}

func (m shiftModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Refreshing..."
			m.failed = false
			return m, m.load()
		case "c", "enter":
			id, ok := m.selectedID()
			if !ok || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Serving #%d...", id)
			return m, m.complete(id)
		case "x":
			id, ok := m.selectedID()
			if !ok || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Cancelling #%d...", id)
			return m, m.cancel(id)
		}
	case ordersLoadedMsg:
		m.busy = false
		m.table.SetRows(orderRows(msg.page.Orders))
		if !m.failed {
			m.status = fmt.Sprintf("%d order(s) waiting.", msg.page.Total)
		}
		return m, nil
	case actionDoneMsg:
		if msg.served {
			m.served++
		} else {
			m.refused++
		}
		m.status = msg.text
		m.failed = false
		return m, m.load()
	case shiftErrMsg:
		m.busy = false
		m.failed = true
		m.status = errorText(msg.err)
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m shiftModel) View() string {
	var b strings.Builder
	b.WriteString(shiftTitle.Render(fmt.Sprintf("☕ %s's counter", m.session.Username)))
	b.WriteString("\n")
	b.WriteString(shiftBorder.Render(m.table.View()))
	b.WriteString("\n")
	if m.failed {
		b.WriteString(shiftBad.Render(m.status))
	} else {
		b.WriteString(shiftOK.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(shiftHelp.Render("c/enter serve • x cancel • r refresh • q quit"))
	b.WriteString("\n")
	return b.String()
}

func orderRows(orders []game.OrderView) []table.Row {
	rows := make([]table.Row, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, table.Row{
			strconv.FormatInt(o.ID, 10),
			summarizeLines(o.Lines),
			o.Total.String(),
			o.CreatedAt.Local().Format("15:04"),
		})
	}
	return rows
}

func errorText(err error) string {
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func runShift(ctx context.Context, client *cl.Client, sess cl.Session) error {
	m := newShiftModel(ctx, client, sess)
	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if sm, ok := final.(shiftModel); ok {
		printInfo(fmt.Sprintf("Shift over: %d served, %d cancelled.", sm.served, sm.refused))
	}
	return nil
}
