// Package tui provides the interactive queue monitor for sealbird.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tkaraden/sealbird/internal/models"
	"github.com/tkaraden/sealbird/internal/store"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// App is the queue monitor model. It reads the store directly; the WAL
// journal lets it observe the daemon's writes without holding it up.
type App struct {
	store       *store.Store
	counts      map[models.PubStatus]int
	items       []models.PubQueueItem
	metaOpen    int
	unpinDepth  int
	selectedIdx int
	spinner     spinner.Model
	viewport    viewport.Model
	width       int
	height      int
	mode        string // "list", "detail"
	current     *models.PubQueueItem
	message     string
	filterIdx   int
	loading     bool
}

var filters = [][]models.PubStatus{
	{models.PubStatusPending, models.PubStatusPublished, models.PubStatusTxSubmitted,
		models.PubStatusConfirmed, models.PubStatusFinal, models.PubStatusFailed},
	{models.PubStatusPending},
	{models.PubStatusPublished},
	{models.PubStatusTxSubmitted},
	{models.PubStatusConfirmed},
	{models.PubStatusFinal},
	{models.PubStatusFailed},
}

var filterNames = []string{"ALL", "PENDING", "PUBLISHED", "SUBMITTED", "CONFIRMED", "FINAL", "FAILED"}

// New creates the queue monitor over an open store.
func New(s *store.Store) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	vp := viewport.New(80, 20)

	return &App{
		store:    s,
		spinner:  sp,
		viewport: vp,
		mode:     "list",
	}
}

// Run starts the monitor.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.spinner.Tick,
		a.refresh(),
		a.tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit

		case "esc":
			if a.mode == "detail" {
				a.mode = "list"
				a.current = nil
				return a, a.refresh()
			}

		case "up", "k":
			if a.mode == "list" && a.selectedIdx > 0 {
				a.selectedIdx--
			} else if a.mode == "detail" {
				a.viewport.LineUp(1)
			}

		case "down", "j":
			if a.mode == "list" && a.selectedIdx < len(a.items)-1 {
				a.selectedIdx++
			} else if a.mode == "detail" {
				a.viewport.LineDown(1)
			}

		case "tab":
			if a.mode == "list" {
				a.filterIdx = (a.filterIdx + 1) % len(filters)
				a.selectedIdx = 0
				return a, a.refresh()
			}

		case "enter":
			if a.mode == "list" && len(a.items) > 0 {
				item := a.items[a.selectedIdx]
				a.current = &item
				a.mode = "detail"
				a.viewport.SetContent(a.renderDetail(&item))
				a.viewport.GotoTop()
			}

		case "r":
			return a, a.refresh()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = msg.Height - 8

	case statsMsg:
		a.loading = false
		a.counts = msg.counts
		a.items = msg.items
		a.metaOpen = msg.metaOpen
		a.unpinDepth = msg.unpinDepth
		a.message = ""
		if a.selectedIdx >= len(a.items) {
			a.selectedIdx = max(0, len(a.items)-1)
		}

	case tickMsg:
		if a.mode == "list" {
			return a, tea.Batch(a.refresh(), a.tickCmd())
		}
		return a, a.tickCmd()

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	header := titleStyle.Render("🦭 SEALBIRD Queue Monitor")
	if a.loading {
		header += " " + a.spinner.View()
	}
	b.WriteString(header + "\n")
	b.WriteString(a.renderCounts() + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 20)) + "\n")

	contentHeight := a.height - 7
	if contentHeight < 5 {
		contentHeight = 5
	}

	switch a.mode {
	case "list":
		filterLabel := fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])
		b.WriteString(countStyle.Render(filterLabel) + "\n")
		b.WriteString(a.renderList(contentHeight - 1))
	case "detail":
		b.WriteString(a.viewport.View())
	}

	if a.message != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(errorColor).Render(a.message))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case "list":
		status = fmt.Sprintf(" Items: %d | ↑↓:nav | Enter:detail | Tab:filter | r:refresh | q:quit", len(a.items))
	default:
		status = " ↑↓:scroll | Esc:back | q:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 20)).Render(status))

	return b.String()
}

func (a *App) refresh() tea.Cmd {
	a.loading = true
	statuses := filters[a.filterIdx]
	return func() tea.Msg {
		counts, err := a.store.CountPubByStatus()
		if err != nil {
			return errMsg{err}
		}
		items, err := a.store.ListPubItems(200, statuses...)
		if err != nil {
			return errMsg{err}
		}
		meta, err := a.store.ListUnconfirmedMetadataUpdates(500)
		if err != nil {
			return errMsg{err}
		}
		unpin, err := a.store.ListUnpinItems(500)
		if err != nil {
			return errMsg{err}
		}
		return statsMsg{
			counts:     counts,
			items:      items,
			metaOpen:   len(meta),
			unpinDepth: len(unpin),
		}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type statsMsg struct {
	counts     map[models.PubStatus]int
	items      []models.PubQueueItem
	metaOpen   int
	unpinDepth int
}

type tickMsg time.Time

type errMsg struct {
	err error
}
