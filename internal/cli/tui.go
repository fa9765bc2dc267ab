package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/gangsheet/pkg/sheet"
)

var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// TemplateListModel lets the user pick a sheet template with the keyboard.
// Selected stays nil when the user quits without choosing.
type TemplateListModel struct {
	Templates []sheet.Sheet
	Cursor    int
	Selected  *sheet.Sheet
	Height    int // visible rows
	Offset    int // first visible row
}

func NewTemplateListModel(templates []sheet.Sheet) TemplateListModel {
	return TemplateListModel{Templates: templates, Height: 10}
}

func (m TemplateListModel) Init() tea.Cmd { return nil }

// move shifts the cursor by delta, clamped to the list, and scrolls the
// window so the cursor stays visible.
func (m *TemplateListModel) move(delta int) {
	if len(m.Templates) == 0 {
		return
	}
	m.Cursor = max(0, min(m.Cursor+delta, len(m.Templates)-1))
	switch {
	case m.Cursor < m.Offset:
		m.Offset = m.Cursor
	case m.Cursor >= m.Offset+m.Height:
		m.Offset = m.Cursor - m.Height + 1
	}
}

func (m TemplateListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 3)
		m.move(0)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		case "pgup":
			m.move(-m.Height)
		case "pgdown":
			m.move(m.Height)
		case "home", "g":
			m.move(-len(m.Templates))
		case "end", "G":
			m.move(len(m.Templates))
		case "enter":
			if len(m.Templates) > 0 {
				t := m.Templates[m.Cursor]
				m.Selected = &t
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m TemplateListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Sheet Template"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ move  g/G first/last  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Templates))
	visible := m.Templates[m.Offset:end]
	cursor := make([]bool, len(visible))
	for i := range visible {
		cursor[i] = m.Offset+i == m.Cursor
	}
	b.WriteString(templateTable(visible, cursor))
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Templates))))

	return b.String()
}

// templateTable renders templates; rows with current set are highlighted.
// current may be nil.
func templateTable(templates []sheet.Sheet, current []bool) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	isCurrent := func(i int) bool { return i < len(current) && current[i] }

	rows := make([][]string, len(templates))
	for i, t := range templates {
		mark := "  "
		if isCurrent(i) {
			mark = "▸ "
		}
		rows[i] = []string{mark, t.ID, t.Name, t.Label(), formatPrice(t.Price), maxDesigns(t)}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "ID", "Name", "Size", "Base", "Max").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle
			case isCurrent(row):
				return listSelectedStyle
			case col == 1:
				return lipgloss.NewStyle().Foreground(colorDim)
			}
			return lipgloss.NewStyle()
		}).
		Render()
}
