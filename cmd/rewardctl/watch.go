package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/HatiCode/rewardboard/pkg/storage"
	"github.com/HatiCode/rewardboard/pkg/view"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var interval time.Duration

	c := &cobra.Command{
		Use:   "watch",
		Short: "Open an interactive terminal dashboard",
		Long: `Open an interactive terminal dashboard backed by a live view.

Keys:
  up/down, k/j  move the cursor
  space         plot or hide the run under the cursor
  a             show or hide older runs
  q             quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := newSource(flags)
			if err != nil {
				return err
			}

			// Logs would corrupt the alternate screen.
			logger := slog.New(slog.DiscardHandler)

			cache := storage.NewMemoryStore()
			defer cache.Close()

			v, err := view.New(view.Options{
				Source:   src,
				Cache:    cache,
				Interval: interval,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			if err := v.Start(cmd.Context()); err != nil {
				return err
			}
			defer v.Close()

			p := tea.NewProgram(newWatchModel(cmd.Context(), v), tea.WithAltScreen(), tea.WithOutput(cmd.OutOrStdout()))

			updates, unsubscribe := v.Subscribe()
			defer unsubscribe()
			go func() {
				for range updates {
					p.Send(changedMsg{})
				}
			}()

			_, err = p.Run()
			return err
		},
	}

	c.Flags().DurationVar(&interval, "interval", view.DefaultInterval, "Refresh period")
	return c
}

// changedMsg tells the program the view's state changed.
type changedMsg struct{}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#d6dbe1")).Background(lipgloss.Color("#1f77b4")).Padding(0, 1)
	statLabel     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a939e"))
	statValue     = lipgloss.NewStyle().Bold(true)
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff7f0e")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5c6570"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#d62728"))
	showHideStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#8a939e"))
)

type watchModel struct {
	ctx    context.Context
	view   *view.View
	model  view.Model
	cursor int
	err    error
}

func newWatchModel(ctx context.Context, v *view.View) watchModel {
	return watchModel{ctx: ctx, view: v, model: v.Model(ctx)}
}

func (m watchModel) Init() tea.Cmd { return nil }

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.model.Rows)-1 {
				m.cursor++
			}
		case " ", "enter":
			if m.cursor < len(m.model.Rows) {
				_, m.err = m.view.Toggle(m.model.Rows[m.cursor].Run)
				m.refresh()
			}
		case "a":
			_, m.err = m.view.ToggleShowAll()
			m.refresh()
		}
	}
	return m, nil
}

func (m *watchModel) refresh() {
	m.model = m.view.Model(m.ctx)
	if m.cursor >= len(m.model.Rows) {
		m.cursor = max(len(m.model.Rows)-1, 0)
	}
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("rewardboard"))
	b.WriteString("\n\n")

	live := m.model.Live
	stats := []struct{ label, value string }{
		{"best reward", live.BestReward},
		{"best episode", live.BestEpisode},
		{"steps", live.BestSteps},
		{"last", live.Last},
		{"elapsed", live.Elapsed},
	}
	for i, s := range stats {
		if i > 0 {
			b.WriteString("   ")
		}
		b.WriteString(statLabel.Render(s.label+" ") + statValue.Render(s.value))
	}
	b.WriteString("\n\n")

	colors := make(map[string]string, len(m.model.Series))
	points := make(map[string]int, len(m.model.Series))
	for _, s := range m.model.Series {
		colors[s.Label] = s.Color
		points[s.Label] = len(s.X)
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("  %-3s %-24s %-8s %12s %16s %8s %7s", "", "run", "model", "best reward", "last avg return", "elapsed", "points")))
	b.WriteString("\n")
	if len(m.model.Rows) == 0 {
		b.WriteString("  waiting for runs...\n")
	}
	for i, r := range m.model.Rows {
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		mark := "[ ]"
		run := fmt.Sprintf("%-24s", r.Run)
		if r.Selected {
			mark = "[x]"
			if c, ok := colors[r.Run]; ok {
				run = lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Render(run)
			}
		}
		pts := view.Placeholder
		if n, ok := points[r.Run]; ok {
			pts = fmt.Sprint(n)
		}
		fmt.Fprintf(&b, "%s%s %s %-8s %12s %16s %8s %7s\n", cursor, mark, run, r.Model, r.BestReward, r.LastAvgReturn, r.Elapsed, pts)
	}

	if m.model.ShowHide != nil {
		b.WriteString("\n" + showHideStyle.Render(m.model.ShowHide.Label+" (a)") + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errStyle.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("↑/↓ move • space plot/hide • a older runs • q quit") + "\n")
	return b.String()
}
