package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tatianab/b40-life-sim/internal/catalog"
	"github.com/tatianab/b40-life-sim/internal/game"
	"github.com/tatianab/b40-life-sim/internal/models"
)

// choosePersona handles input on the start screen: "A", "B Siti" or
// "resume 2".
func (m model) choosePersona(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return m, nil
	}

	if strings.EqualFold(fields[0], "resume") && len(fields) == 2 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > len(m.resumable) {
			return m, nil
		}
		sess := m.resumable[n-1]
		m.state = stateLoading
		return m, func() tea.Msg {
			return startedMsg{session: sess, intro: []string{fmt.Sprintf("Welcome back, %s.", sess.PlayerName)}}
		}
	}

	id := models.PersonaID(strings.ToUpper(fields[0]))
	if _, err := m.svc.Catalog().Persona(id); err != nil {
		return m, nil
	}
	name := strings.Join(fields[1:], " ")
	m.state = stateLoading
	return m, func() tea.Msg {
		sess, err := m.svc.StartGame(context.Background(), name, id)
		if err != nil {
			return errMsg{err}
		}
		intro := []string{
			fmt.Sprintf("%s, it's Monday of week 1. You have RM%d to your name and RM%d owed.", sess.PlayerName, sess.Money, sess.Debt),
			"Each week: work five days, buy groceries once, fill the tank once. In week 4 a debt instalment is due too.",
			"Type 'map' to see where you can go.",
		}
		return startedMsg{session: sess, intro: intro}
	}
}

// execute turns a line of input into a game command.
func (m model) execute(input string) tea.Cmd {
	s := m.session
	fields := strings.Fields(strings.ToLower(input))
	verb, args := fields[0], fields[1:]

	if n, err := strconv.Atoi(verb); err == nil {
		switch {
		case s.WeekendPending:
			if n < 1 || n > len(m.weekend) {
				return m.local(fmt.Sprintf("Pick an activity between 1 and %d.", len(m.weekend)))
			}
			return m.chooseWeekend(m.weekend[n-1])
		case m.scenario != nil:
			return m.resolveChoice(*m.scenario, n-1)
		default:
			return m.local("There is nothing to choose right now.")
		}
	}

	switch verb {
	case "help", "?":
		return m.local(playHelp)
	case "map", "look":
		return m.local(m.describeMap())
	case "go", "travel":
		if len(args) == 0 {
			return m.local("Go where? Type 'map' to see the places you know.")
		}
		return m.travel(strings.Join(args, " "))
	case "talk", "interact", "explore":
		return m.interact()
	case "work":
		return m.objective(game.ObjectiveRequest{Action: models.ActionWork}, "You put in a full day's work.")
	case "groceries", "shop":
		if len(args) > 0 && (args[0] == "cheap" || args[0] == "unhealthy") {
			return m.objective(game.ObjectiveRequest{Action: models.ActionGroceriesUnhealthy}, "You grab instant noodles and snacks for the week.")
		}
		return m.objective(game.ObjectiveRequest{Action: models.ActionGroceriesHealthy}, "You buy fresh vegetables, rice and fish for the week.")
	case "petrol", "fill":
		return m.objective(game.ObjectiveRequest{Action: models.ActionPetrol}, "The tank is full for another week.")
	case "pay", "debt":
		return m.objective(game.ObjectiveRequest{Action: models.ActionDebt}, "You pay this month's instalment. The bank notices.")
	case "next", "sleep":
		return m.advance(false)
	case "leave":
		return m.advance(true)
	case "history":
		return m.history()
	case "board", "leaderboard":
		return m.leaderboard()
	case "debrief":
		return m.debrief()
	}
	return m.local(fmt.Sprintf("I don't know how to %q. Type 'help' for commands.", verb))
}

func (m model) local(text string) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{lines: []string{text}, scenario: m.scenario, weekend: m.weekend}
	}
}

func (m model) describeMap() string {
	if m.persona == nil {
		return "You don't know this area."
	}
	var b strings.Builder
	b.WriteString("Places you know:\n")
	for i, loc := range m.persona.Locations {
		cost := "1 energy"
		switch loc.Kind {
		case catalog.KindDining:
			cost = "free"
		case catalog.KindWeekend:
			cost = "weekends only"
		}
		here := ""
		if loc.ID == m.session.CurrentLocation {
			here = " (you are here)"
		}
		tag := ""
		if loc.Objective != "" {
			tag = " [" + string(loc.Objective) + "]"
		}
		fmt.Fprintf(&b, "  %d. %s %s%s: %s%s\n", i+1, loc.Icon, loc.Name, tag, cost, here)
	}
	b.WriteString("Use 'go <number>' or 'go <name>'.")
	return b.String()
}

func (m model) findLocation(query string) (catalog.Location, bool) {
	if m.persona == nil {
		return catalog.Location{}, false
	}
	if n, err := strconv.Atoi(query); err == nil && n >= 1 && n <= len(m.persona.Locations) {
		return m.persona.Locations[n-1], true
	}
	for _, loc := range m.persona.Locations {
		if strings.EqualFold(string(loc.ID), query) || strings.EqualFold(loc.Name, query) {
			return loc, true
		}
	}
	for _, loc := range m.persona.Locations {
		if strings.Contains(strings.ToLower(loc.Name), query) {
			return loc, true
		}
	}
	return catalog.Location{}, false
}

func (m model) travel(query string) tea.Cmd {
	loc, ok := m.findLocation(query)
	if !ok {
		return m.local(fmt.Sprintf("You don't know a place called %q.", query))
	}
	if loc.ID == m.session.CurrentLocation {
		return m.local(fmt.Sprintf("You're already at %s.", loc.Name))
	}
	id := m.session.ID
	return func() tea.Msg {
		ctx := context.Background()
		sess, err := m.svc.Travel(ctx, id, loc.ID)
		if err != nil {
			return resultMsg{err: playerError(err)}
		}
		res := resultMsg{session: sess, lines: []string{fmt.Sprintf("You head to %s %s.", loc.Icon, loc.Name)}}
		m.followUp(ctx, &res)
		return res
	}
}

func (m model) interact() tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		ctx := context.Background()
		sess, sc, err := m.svc.Interact(ctx, id)
		if err != nil {
			return resultMsg{err: playerError(err)}
		}
		res := resultMsg{session: sess, lines: []string{renderScenario(sc)}, scenario: &sc}
		m.followUp(ctx, &res)
		return res
	}
}

func (m model) resolveChoice(sc models.Scenario, idx int) tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		ctx := context.Background()
		sess, dec, err := m.svc.ResolveChoice(ctx, id, sc.ID, idx)
		if err != nil {
			if errors.Is(err, models.ErrNoChoice) {
				return resultMsg{session: m.session, lines: []string{"That isn't one of the choices."}, scenario: &sc}
			}
			return resultMsg{err: playerError(err)}
		}
		lines := []string{fmt.Sprintf("You chose: %s. %s", dec.ChoiceText, describeDelta(dec.Delta))}
		if dec.HiddenConsequence != "" {
			lines = append(lines, dec.HiddenConsequence)
		}
		res := resultMsg{session: sess, lines: lines}
		m.followUp(ctx, &res)
		return res
	}
}

func (m model) objective(req game.ObjectiveRequest, done string) tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		ctx := context.Background()
		sess, err := m.svc.CompleteObjective(ctx, id, req)
		if err != nil {
			return resultMsg{err: playerError(err)}
		}
		res := resultMsg{session: sess, lines: []string{done}}
		m.followUp(ctx, &res)
		return res
	}
}

func (m model) advance(leave bool) tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		ctx := context.Background()
		r, err := m.svc.AdvanceDay(ctx, id, leave)
		if err != nil {
			return resultMsg{err: playerError(err)}
		}
		res := resultMsg{session: r.Session}
		switch {
		case r.Blocker == game.BlockedByWork:
			res.lines = append(res.lines, "You haven't been to work today. Go to work, or type 'leave' to take the day off and face the consequences.")
		case r.Blocker == game.BlockedByObjectives:
			res.lines = append(res.lines, "It's the last day of the week and your objectives aren't done. Use the energy you have left.")
		case r.ShouldShowWeekendDialog:
			res.lines = append(res.lines, "The working week is over.")
		case r.CanAdvance && !r.IsGameOver:
			if r.LeaveApplied {
				res.lines = append(res.lines, "You took the day off. Your boss was not pleased.")
			}
			res.lines = append(res.lines, fmt.Sprintf("A new day begins: week %d, day %d.", r.Session.CurrentWeek, r.Session.CurrentDay))
		}
		m.followUp(ctx, &res)
		return res
	}
}

func (m model) chooseWeekend(act catalog.WeekendActivity) tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		ctx := context.Background()
		sess, err := m.svc.ResolveWeekend(ctx, id, act.ID)
		if err != nil {
			return resultMsg{err: playerError(err), weekend: m.weekend}
		}
		res := resultMsg{session: sess, lines: []string{fmt.Sprintf("%s. %s", act.Name, describeDelta(act.Delta()))}}
		if !sess.IsGameOver {
			res.lines = append(res.lines, fmt.Sprintf("Week %d begins.", sess.CurrentWeek))
		}
		m.followUp(ctx, &res)
		return res
	}
}

// followUp adds whatever the new state calls for: a due weekly event, the
// weekend menu, or the end of the game.
func (m model) followUp(ctx context.Context, res *resultMsg) {
	sess := res.session
	if game.EventDue(sess) {
		next, ev, err := m.svc.ResolveWeeklyEvent(ctx, sess.ID)
		if err != nil {
			res.err = err
			return
		}
		sess = next
		res.session = next
		res.lines = append(res.lines, fmt.Sprintf("%s! %s %s", ev.Title, ev.Description, describeDelta(ev.Consequence)))
	}

	if sess.IsGameOver {
		res.scenario = nil
		res.lines = append(res.lines, "GAME OVER. "+game.Describe(sess.Ending))
		if sess.FailureReason != "" {
			res.lines = append(res.lines, "Reason: "+sess.FailureReason)
		}
		if text, err := m.svc.Debrief(ctx, sess.ID); err == nil {
			res.lines = append(res.lines, text)
		}
		return
	}

	if sess.WeekendPending {
		res.scenario = nil
		menu, err := m.svc.WeekendMenu(ctx, sess.ID)
		if err != nil {
			res.err = err
			return
		}
		res.weekend = menu
		res.lines = append(res.lines, renderWeekend(menu))
	}
}

func (m model) history() tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		decisions, err := m.svc.RecentDecisions(context.Background(), id, 10)
		if err != nil {
			return resultMsg{err: err}
		}
		if len(decisions) == 0 {
			return resultMsg{lines: []string{"You haven't made any decisions yet."}, scenario: m.scenario, weekend: m.weekend}
		}
		var b strings.Builder
		b.WriteString("Recent decisions:\n")
		for _, d := range decisions {
			fmt.Fprintf(&b, "  W%dD%d %s: %s\n", d.Week, d.Day, d.LocationID, d.ChoiceText)
		}
		return resultMsg{lines: []string{b.String()}, scenario: m.scenario, weekend: m.weekend}
	}
}

func (m model) leaderboard() tea.Cmd {
	return func() tea.Msg {
		entries, err := m.svc.Leaderboard(context.Background(), 10)
		if err != nil {
			return resultMsg{err: err}
		}
		if len(entries) == 0 {
			return resultMsg{lines: []string{"The leaderboard is empty."}, scenario: m.scenario, weekend: m.weekend}
		}
		var b strings.Builder
		b.WriteString("Leaderboard:\n")
		for i, e := range entries {
			fmt.Fprintf(&b, "  %2d. %-16s RM%-6d %d weeks\n", i+1, e.PlayerName, e.Score, e.WeeksCompleted)
		}
		return resultMsg{lines: []string{b.String()}, scenario: m.scenario, weekend: m.weekend}
	}
}

func (m model) debrief() tea.Cmd {
	id := m.session.ID
	return func() tea.Msg {
		text, err := m.svc.Debrief(context.Background(), id)
		if err != nil {
			return resultMsg{err: playerError(err)}
		}
		return resultMsg{lines: []string{text}}
	}
}

func renderScenario(sc models.Scenario) string {
	var b strings.Builder
	b.WriteString(sc.Narration)
	if sc.NPCDialogue != "" {
		fmt.Fprintf(&b, "\n\n\"%s\"", sc.NPCDialogue)
	}
	b.WriteString("\n")
	for i, c := range sc.Choices {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, c.Text)
	}
	return b.String()
}

func renderWeekend(menu []catalog.WeekendActivity) string {
	var b strings.Builder
	b.WriteString("How will you spend the weekend?\n")
	for i, a := range menu {
		price := "free"
		switch {
		case a.MoneyCost > 0:
			price = fmt.Sprintf("RM%d", a.MoneyCost)
		case a.MoneyCost < 0:
			price = fmt.Sprintf("earns RM%d", -a.MoneyCost)
		}
		fmt.Fprintf(&b, "\n  %d. %s (%s): %s", i+1, a.Name, price, a.Description)
	}
	return b.String()
}

func describeDelta(d models.StatDelta) string {
	var parts []string
	add := func(name string, v int) {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%s %+d", name, v))
		}
	}
	add("Money", d.Money)
	add("Credit", d.Credit)
	add("Health", d.Health)
	add("Stress", d.Stress)
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// playerError keeps storage faults intact and rewrites rule rejections into
// something the player can act on.
func playerError(err error) error {
	switch {
	case models.IsStorageFault(err):
		return err
	case errors.Is(err, models.ErrInsufficientEnergy):
		return errors.New("you're too tired for that; call it a day with 'next'")
	case errors.Is(err, models.ErrInsufficientFunds):
		return errors.New("you can't afford that")
	case errors.Is(err, models.ErrWrongLocation):
		return errors.New("you can't do that here")
	case errors.Is(err, models.ErrLocationLocked):
		return errors.New("that place is only open on the weekend")
	}
	return err
}
