package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/game"
	"github.com/tatianab/b40-life-sim/internal/models"
	"github.com/tatianab/b40-life-sim/internal/service"
)

type sessionState int

const (
	stateChoosePersona sessionState = iota
	stateLoading
	statePlaying
	stateError
)

type model struct {
	state     sessionState
	svc       *service.GameService
	session   models.GameSession
	persona   *catalog.Persona
	scenario  *models.Scenario
	weekend   []catalog.WeekendActivity
	resumable []models.GameSession
	textInput textinput.Model
	viewport  viewport.Model
	err       error
	gameLog   string
	width     int
	height    int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF8787"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

const playHelp = "Commands: map, go <place>, talk, work, groceries [cheap], petrol, pay, next, leave, history, board, /restart, /quit"

func NewModel(svc *service.GameService) model {
	ti := textinput.New()
	ti.Placeholder = "Persona id, optionally followed by your name..."
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 40

	return model{
		state:     stateChoosePersona,
		svc:       svc,
		textInput: ti,
		viewport:  viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadResumable())
}

type resumableMsg struct {
	sessions []models.GameSession
}

type startedMsg struct {
	session models.GameSession
	intro   []string
}

// resultMsg carries the outcome of a game command.
type resultMsg struct {
	session  models.GameSession
	lines    []string
	scenario *models.Scenario
	weekend  []catalog.WeekendActivity
	err      error
}

type errMsg struct {
	err error
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.Reset()
			if input == "/quit" {
				return m, tea.Quit
			}
			if m.state == stateChoosePersona {
				return m.choosePersona(input)
			}
			if m.state == statePlaying {
				if input == "" {
					return m, nil
				}
				if input == "/restart" {
					return m.restart()
				}
				logWidth := int(float64(m.width) * 0.75)
				m.gameLog += "\n" + userStyle.Width(logWidth).Render("> "+input) + "\n\n"
				m.refreshLog()
				return m, m.execute(input)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = int(float64(msg.Width) * 0.75)
		m.viewport.Height = msg.Height - 6
		if m.state == statePlaying {
			m.viewport.SetContent(m.gameLog)
		}

	case resumableMsg:
		m.resumable = msg.sessions
		return m, nil

	case startedMsg:
		m.state = statePlaying
		m.setSession(msg.session)
		m.scenario = nil
		m.weekend = nil
		m.gameLog = ""
		m.appendLines(msg.intro)
		m.textInput.Placeholder = "What do you do?"
		return m, nil

	case resultMsg:
		if msg.err != nil {
			if models.IsStorageFault(msg.err) {
				m.err = msg.err
				m.state = stateError
				return m, nil
			}
			m.appendNotice(msg.err.Error())
			return m, nil
		}
		m.setSession(msg.session)
		m.scenario = msg.scenario
		m.weekend = msg.weekend
		m.appendLines(msg.lines)
		return m, nil

	case errMsg:
		m.err = msg.err
		m.state = stateError
		return m, nil
	}

	if m.state == stateChoosePersona || m.state == statePlaying {
		var vpCmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		if m.state == statePlaying {
			m.viewport, vpCmd = m.viewport.Update(msg)
		}
		return m, tea.Batch(cmd, vpCmd)
	}

	return m, nil
}

func (m *model) setSession(s models.GameSession) {
	if s.ID == "" {
		return
	}
	m.session = s
	if p, err := m.svc.Catalog().Persona(s.PersonaID); err == nil {
		m.persona = p
	}
}

func (m *model) appendLines(lines []string) {
	logWidth := int(float64(m.width) * 0.75)
	for _, l := range lines {
		m.gameLog += gameStyle.Width(logWidth).Render(l) + "\n\n"
	}
	m.refreshLog()
}

func (m *model) appendNotice(text string) {
	m.gameLog += noticeStyle.Render("! "+text) + "\n\n"
	m.refreshLog()
}

func (m *model) refreshLog() {
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

func (m model) restart() (tea.Model, tea.Cmd) {
	m.state = stateChoosePersona
	m.session = models.GameSession{}
	m.persona = nil
	m.scenario = nil
	m.weekend = nil
	m.gameLog = ""
	m.textInput.Placeholder = "Persona id, optionally followed by your name..."
	return m, m.loadResumable()
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateChoosePersona:
		s = m.renderPersonaChoice()

	case stateLoading:
		s = "\n  Loading... please wait.\n"

	case statePlaying:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)

		help := playHelp
		switch {
		case m.session.IsGameOver:
			help = "The game is over. /restart to play again, /quit to leave."
		case m.session.WeekendPending:
			help = "Pick a weekend activity by number."
		case m.scenario != nil:
			help = "Pick a choice by number, or carry on with another command."
		}

		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+m.textInput.View(),
			"\n"+helpStyle.Render(help),
		)

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) renderPersonaChoice() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("B40 LIFE SIMULATOR") + "\n\n")
	b.WriteString("Four weeks. Five working days each. Keep your job, feed yourself, keep the tank full and pay what you owe.\n\n")
	for _, p := range m.svc.Catalog().Personas {
		fmt.Fprintf(&b, "  [%s] %s: RM%d cash, RM%d debt, credit %d\n", p.ID, p.Name, p.StartingMoney, p.StartingDebt, p.StartingCredit)
		fmt.Fprintf(&b, "      %s\n", strings.TrimSpace(p.Description))
	}
	if len(m.resumable) > 0 {
		b.WriteString("\nUnfinished games:\n")
		for i, s := range m.resumable {
			fmt.Fprintf(&b, "  resume %d: %s, week %d day %d, RM%d\n", i+1, s.PlayerName, s.CurrentWeek, s.CurrentDay, s.Money)
		}
	}
	b.WriteString("\n" + m.textInput.View())
	return b.String()
}

func (m model) renderState() string {
	if m.session.ID == "" {
		return ""
	}
	s := m.session

	var b strings.Builder
	b.WriteString(titleStyle.Render("WEEK") + "\n")
	if s.WeekendPending {
		fmt.Fprintf(&b, "Week %d, weekend\n\n", s.CurrentWeek)
	} else {
		fmt.Fprintf(&b, "Week %d of %d, day %d of %d\n\n", s.CurrentWeek, models.TotalWeeks, s.CurrentDay, models.DaysPerWeek)
	}

	b.WriteString(titleStyle.Render("LOCATION") + "\n")
	loc := string(s.CurrentLocation)
	if m.persona != nil {
		if l, err := m.persona.Location(s.CurrentLocation); err == nil {
			loc = l.Icon + " " + l.Name
		}
	}
	b.WriteString(loc + "\n\n")

	b.WriteString(titleStyle.Render("STATS") + "\n")
	fmt.Fprintf(&b, "Energy: %s %d/%d\n", strings.Repeat("#", s.EnergyRemaining)+strings.Repeat(".", models.MaxEnergy-s.EnergyRemaining), s.EnergyRemaining, models.MaxEnergy)
	fmt.Fprintf(&b, "Money: RM%d\nDebt: RM%d\nCredit: %d\nHealth: %d\nStress: %d\n\n", s.Money, s.Debt, s.CreditScore, s.Health, s.Stress)

	b.WriteString(titleStyle.Render("THIS WEEK") + "\n")
	for _, it := range game.WeeklyObjectives(s.Objectives, s.CurrentWeek).Items {
		mark := "[ ]"
		if it.Complete {
			mark = "[x]"
		}
		if it.Target > 1 {
			fmt.Fprintf(&b, "%s %s %d/%d\n", mark, it.Type, it.Progress, it.Target)
		} else {
			fmt.Fprintf(&b, "%s %s\n", mark, it.Type)
		}
	}

	stateWidth := int(float64(m.width) * 0.23) // Leave some room for padding
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(b.String())
}

func (m model) loadResumable() tea.Cmd {
	return func() tea.Msg {
		sessions, err := m.svc.ActiveGames(context.Background(), 5)
		if err != nil {
			return errMsg{err}
		}
		return resumableMsg{sessions}
	}
}

func Run(svc *service.GameService) error {
	p := tea.NewProgram(NewModel(svc), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
