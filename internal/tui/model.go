package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	tunebook "github.com/ceol/tunebook-go"
	"github.com/ceol/tunebook-go/internal/abc"
)

const seekStep = 1.0 // seconds per arrow press

var (
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("36")).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214"))
	cursorStyle    = lipgloss.NewStyle().Underline(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model drives one tune's transport from the keyboard and renders the
// score with the synchronizer's highlight state.
type Model struct {
	player   *tunebook.Player
	score    *abc.Score
	overlay  *Overlay
	updates  <-chan struct{}
	quitting bool
}

// PositionMsg wakes the view after a transport clock tick.
type PositionMsg struct{}

// NewModel wires a model over an activated player. updates should be
// fed from the player's position callback; the model re-renders on
// every message.
func NewModel(player *tunebook.Player, score *abc.Score, overlay *Overlay, updates <-chan struct{}) Model {
	return Model{
		player:  player,
		score:   score,
		overlay: overlay,
		updates: updates,
	}
}

func listenForTicks(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return PositionMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return listenForTicks(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.player.Close()
			return m, tea.Quit

		case " ":
			if m.player.State() == tunebook.Playing {
				m.player.Pause()
			} else {
				m.player.Play()
			}

		case "s":
			m.player.Stop()

		case "left":
			m.player.Seek(m.player.Position() - seekStep)

		case "right":
			m.player.Seek(m.player.Position() + seekStep)

		case "+", "=":
			m.player.SetTempo(m.player.Tempo() + 0.1)

		case "-", "_":
			m.player.SetTempo(m.player.Tempo() - 0.1)

		case "l":
			m.player.SetLoop(!m.player.Loop())
		}

	case PositionMsg:
		return m, listenForTicks(m.updates)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	state := m.player.State()
	pos := m.player.Position()
	total := m.player.TotalDuration()
	tempo := m.player.Tempo()

	loopFlag := ""
	if m.player.Loop() {
		loopFlag = "  loop"
	}
	header := headerStyle.Render(fmt.Sprintf("%s  %s  %5.1fs/%.1fs  %.1fx%s",
		m.score.Title, strings.ToUpper(state.String()), pos, total, tempo, loopFlag))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(m.renderScore())
	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render("space:play/pause  s:stop  ←→:seek  +/-:tempo  l:loop  q:quit"))
	return out.String()
}

// renderScore styles the monospace ABC body cell by cell: sounding
// glyphs get the highlight background, the cursor column an underline.
func (m Model) renderScore() string {
	_, cursorCol, cursorRow, hasCursor := m.overlay.snapshot()

	var out strings.Builder
	for row, line := range strings.Split(m.score.Body, "\n") {
		for col, r := range []rune(line) {
			s := string(r)
			switch {
			case m.overlay.highlighted(col, row):
				out.WriteString(highlightStyle.Render(s))
			case hasCursor && row == cursorRow && col == cursorCol:
				out.WriteString(cursorStyle.Render(s))
			default:
				out.WriteString(s)
			}
		}
		out.WriteString("\n")
	}
	return out.String()
}
