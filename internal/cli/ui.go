package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"declimp/pkg/resolve"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	deferredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	resolvedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

func newUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Browse declarations and their dependencies interactively",
		RunE:  runUI,
	}
}

func runUI(cmd *cobra.Command, _ []string) error {
	rt, err := NewRuntime(cfg)
	if err != nil {
		return err
	}
	report, err := rt.Run(cmd.Context())
	if err != nil {
		return err
	}

	m := newUIModel(report)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type declItem struct {
	summary resolve.DeclarationSummary
}

func (i declItem) Title() string {
	return i.summary.Module + "." + i.summary.Name
}

func (i declItem) Description() string {
	return fmt.Sprintf("%s, %s, %d deps", i.summary.Kind, i.summary.State, len(i.summary.Dependencies))
}

func (i declItem) FilterValue() string {
	return i.summary.Module + "." + i.summary.Name
}

type uiModel struct {
	declList   list.Model
	report     *Report
	showDetail bool
	lastUpdate time.Time
}

func newUIModel(report *Report) uiModel {
	items := make([]list.Item, 0, len(report.Snapshot))
	for _, d := range report.Snapshot {
		items = append(items, declItem{summary: d})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Declarations"
	l.SetShowStatusBar(false)

	return uiModel{
		declList:   l,
		report:     report,
		lastUpdate: time.Now(),
	}
}

func (m uiModel) Init() tea.Cmd {
	return nil
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			m.showDetail = true
			return m, nil
		case "esc":
			if m.showDetail {
				m.showDetail = false
				return m, nil
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		height := msg.Height - v - 6
		if height < 5 {
			height = 5
		}
		m.declList.SetSize(msg.Width-h, height)
	}

	var cmd tea.Cmd
	m.declList, cmd = m.declList.Update(msg)
	return m, cmd
}

func (m uiModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle("declimp"))
	b.WriteString("\n\n")

	if m.showDetail {
		b.WriteString(m.detailView())
	} else {
		b.WriteString(m.declList.View())
	}

	b.WriteString("\n")
	b.WriteString(statusStyle.Render(fmt.Sprintf(
		"%d declarations, %d resolved, %d deferred, %d failures | enter detail, esc back, q quit",
		m.report.Submitted, m.report.Resolved, m.report.Deferred, len(m.report.Failures))))
	return docStyle.Render(b.String())
}

func (m uiModel) detailView() string {
	item, ok := m.declList.SelectedItem().(declItem)
	if !ok {
		return "no declaration selected"
	}
	d := item.summary

	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s\n", d.Module, d.Name)
	fmt.Fprintf(&b, "kind:  %s\n", d.Kind)
	fmt.Fprintf(&b, "state: %s\n\n", stateStyle(d.State).Render(d.State))

	if len(d.Dependencies) == 0 {
		b.WriteString("no dependencies\n")
		return b.String()
	}
	b.WriteString("dependencies (first-resolution order):\n")
	for i, dep := range d.Dependencies {
		fmt.Fprintf(&b, "  %2d. %s (%s)\n", i+1, dep.Module, dep.Reason)
	}
	return b.String()
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "failed":
		return failedStyle
	case "deferred":
		return deferredStyle
	default:
		return resolvedStyle
	}
}
