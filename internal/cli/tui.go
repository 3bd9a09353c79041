package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/depstage/pkg/store"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// EntryListModel - Interactive environment browser
// =============================================================================

// EntryListModel is the bubbletea model for browsing staged environments.
// Enter drills into an environment's package list; esc returns.
type EntryListModel struct {
	Entries []*store.Entry
	Cursor  int
	Open    *store.Entry // Entry whose packages are shown, nil for the list
	Height  int
	Offset  int
}

// NewEntryListModel creates a browser over the given entries.
func NewEntryListModel(entries []*store.Entry) EntryListModel {
	return EntryListModel{
		Entries: entries,
		Height:  15,
	}
}

func (m EntryListModel) Init() tea.Cmd {
	return nil
}

func (m EntryListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.Open != nil {
				m.Open = nil
				return m, nil
			}
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Entries)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if m.Open == nil && len(m.Entries) > 0 {
				m.Open = m.Entries[m.Cursor]
			}
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m EntryListModel) View() string {
	if m.Open != nil {
		return m.viewEntry()
	}
	return m.viewList()
}

func (m EntryListModel) viewList() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Staged Environments"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ open  q quit"))
	b.WriteString("\n\n")

	if len(m.Entries) == 0 {
		b.WriteString(listDimStyle.Render("  store is empty"))
		return b.String()
	}

	end := m.Offset + m.Height
	if end > len(m.Entries) {
		end = len(m.Entries)
	}

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		e := m.Entries[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		fp := e.Result.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}

		rows = append(rows, []string{
			cursor,
			fp,
			string(e.Result.Mode),
			fmt.Sprintf("%d", len(e.Result.Packages)),
			formatRelativeTime(e.Result.CreatedAt),
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Fingerprint", "Mode", "Packages", "Created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if m.Offset+row == m.Cursor {
				return listSelectedStyle
			}
			return listNormalStyle
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Entries))))

	return b.String()
}

func (m EntryListModel) viewEntry() string {
	var b strings.Builder
	e := m.Open

	b.WriteString(StyleTitle.Render("Environment " + e.Result.Fingerprint[:min(12, len(e.Result.Fingerprint))]))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("esc back  q quit"))
	b.WriteString("\n\n")

	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %s mode · created %s\n  %s\n\n",
		e.Result.Mode, formatRelativeTime(e.Result.CreatedAt), e.Dir)))

	for _, pkg := range e.Result.Packages {
		line := fmt.Sprintf("  %s==%s", pkg.Name, pkg.Version)
		b.WriteString(listNormalStyle.Render(line))
		if pkg.Checksum != "" {
			b.WriteString(listDimStyle.Render("  " + pkg.Checksum[:min(8, len(pkg.Checksum))]))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

func formatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
