// internal/tui/app.go
//
// Terminal scoring panel. It follows The Elm Architecture like every
// bubbletea program: App holds the state, Update folds messages into it and
// View renders it.
//
// Screens: the skill list (filterable), the editor for the selected skill
// and the track picker.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/logbook"
	"github.com/kingrea/skilltree/internal/panel"
	"github.com/kingrea/skilltree/internal/parcours"
	"github.com/kingrea/skilltree/internal/score"
	"github.com/kingrea/skilltree/internal/taxonomy"
)

// appState represents which screen is shown.
type appState int

const (
	stateSkillList appState = iota
	stateEditing
	stateTrackSelect
)

const (
	smallStep = 1
	largeStep = 10
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithTree lets the panel resolve names, colors and the global score from
// the rendered tree.
func WithTree(root *dom.Element) AppOption {
	return func(a *App) {
		a.root = root
	}
}

// WithLogbook shows the tail of the score journal.
func WithLogbook(book *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = book
	}
}

// WithTracks enables the track picker.
func WithTracks(sel *parcours.Selector) AppOption {
	return func(a *App) {
		a.tracks = sel
	}
}

// skillItem implements list.Item for the skill menu.
type skillItem struct {
	match taxonomy.Match
	score int
}

func (i skillItem) Title() string {
	mark := " "
	if score.Done(float64(i.score)) {
		mark = "✓"
	}
	return fmt.Sprintf("%s %s · %s", mark, i.match.Skill.Code, i.match.Skill.Label)
}

func (i skillItem) Description() string {
	return fmt.Sprintf("%s · année %s · %d%%", i.match.Group.Label, i.match.Level.Year, i.score)
}

func (i skillItem) FilterValue() string {
	return string(i.match.Skill.Code) + " " + i.match.Skill.Label
}

type trackItem struct {
	choice parcours.Choice
}

func (i trackItem) Title() string       { return i.choice.Label() }
func (i trackItem) Description() string { return "parcours " + string(i.choice) }
func (i trackItem) FilterValue() string { return string(i.choice) }

// App is the application model.
type App struct {
	state   appState
	panel   *panel.Panel
	skills  []taxonomy.Match
	root    *dom.Element
	logbook *logbook.Logbook
	tracks  *parcours.Selector

	skillMenu list.Model
	trackMenu list.Model
	note      textinput.Model

	selection panel.Selection
	value     int
	noteFocus bool

	statusMsg string
	err       error
	width     int
	height    int
}

// NewApp builds the panel UI over p for the given skills.
func NewApp(p *panel.Panel, skills []taxonomy.Match, opts ...AppOption) *App {
	skillMenu := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	skillMenu.Title = "⬡ ARBRE DE COMPÉTENCES"
	skillMenu.SetShowStatusBar(false)

	items := make([]list.Item, 0, len(parcours.Choices))
	for _, c := range parcours.Choices {
		items = append(items, trackItem{choice: c})
	}
	trackMenu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	trackMenu.Title = "Parcours de 3ème année"
	trackMenu.SetShowStatusBar(false)
	trackMenu.SetFilteringEnabled(false)

	note := textinput.New()
	note.Placeholder = "justification"
	note.CharLimit = 500

	app := &App{
		state:     stateSkillList,
		panel:     p,
		skills:    skills,
		skillMenu: skillMenu,
		trackMenu: trackMenu,
		note:      note,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.refreshSkills()
	return app
}

func (a *App) refreshSkills() {
	idx := a.skillMenu.Index()
	items := make([]list.Item, 0, len(a.skills))
	for _, m := range a.skills {
		items = append(items, skillItem{match: m, score: a.storedScore(m)})
	}
	a.skillMenu.SetItems(items)
	if idx >= 0 && idx < len(items) {
		a.skillMenu.Select(idx)
	}
}

func (a *App) storedScore(m taxonomy.Match) int {
	sel, ok := a.panel.Active()
	if ok && sel.Code == m.Skill.Code {
		return sel.Score
	}
	return a.panel.Score(m.Skill.Code)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.skillMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-12))
		a.trackMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-12))
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		switch a.state {
		case stateSkillList:
			if a.skillMenu.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "q":
				return a, tea.Quit
			case "p":
				if a.tracks != nil {
					a.state = stateTrackSelect
					return a, nil
				}
			case "enter":
				return a.openSelectedSkill()
			}
		case stateEditing:
			return a.updateEditor(msg)
		case stateTrackSelect:
			switch msg.String() {
			case "esc", "q":
				a.state = stateSkillList
				return a, nil
			case "enter":
				return a.confirmTrack()
			}
		}
	}

	var cmd tea.Cmd
	switch a.state {
	case stateSkillList:
		a.skillMenu, cmd = a.skillMenu.Update(msg)
	case stateTrackSelect:
		a.trackMenu, cmd = a.trackMenu.Update(msg)
	case stateEditing:
		if a.noteFocus {
			a.note, cmd = a.note.Update(msg)
		}
	}
	return a, cmd
}

func (a *App) openSelectedSkill() (tea.Model, tea.Cmd) {
	item, ok := a.skillMenu.SelectedItem().(skillItem)
	if !ok {
		return a, nil
	}
	code := item.match.Skill.Code
	var el *dom.Element
	if a.root != nil {
		for _, candidate := range a.root.All() {
			if candidate.ID() == string(code) {
				el = candidate
				break
			}
		}
	}
	fallback := ""
	if cat, ok := item.match.Group.Category(); ok {
		fallback = cat.Color
	}
	sel, err := a.panel.Select(string(code), el, fallback)
	if err != nil {
		a.err = err
		return a, nil
	}
	a.err = nil
	a.selection = sel
	a.value = sel.Score
	a.note.SetValue(sel.Note)
	a.note.Blur()
	a.noteFocus = false
	a.state = stateEditing
	a.statusMsg = fmt.Sprintf("Édition de %s", sel.Code)
	return a, nil
}

func (a *App) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "esc":
		a.state = stateSkillList
		a.note.Blur()
		a.noteFocus = false
		a.refreshSkills()
		return a, nil
	case "tab":
		a.noteFocus = !a.noteFocus
		if a.noteFocus {
			return a, a.note.Focus()
		}
		a.note.Blur()
		if err := a.panel.SetNote(a.note.Value()); err != nil {
			a.err = err
		}
		return a, nil
	case "enter":
		entry, err := a.panel.Save(a.value, a.note.Value())
		if err != nil {
			a.err = err
			return a, nil
		}
		a.err = nil
		a.selection, _ = a.panel.Active()
		a.statusMsg = fmt.Sprintf("SAVED · %s = %d", entry.Code, entry.Value)
		return a, nil
	}
	if a.noteFocus {
		var cmd tea.Cmd
		a.note, cmd = a.note.Update(msg)
		return a, cmd
	}
	step := 0
	switch key {
	case "right", "l":
		step = smallStep
	case "left", "h":
		step = -smallStep
	case "up", "k":
		step = largeStep
	case "down", "j":
		step = -largeStep
	}
	if step != 0 {
		a.setValue(a.value + step)
	}
	return a, nil
}

func (a *App) setValue(v int) {
	v = int(score.Clamp(float64(v)))
	if v == a.value {
		return
	}
	a.value = v
	if err := a.panel.Input(v); err != nil {
		a.err = err
		return
	}
	a.selection.Score = v
}

func (a *App) confirmTrack() (tea.Model, tea.Cmd) {
	item, ok := a.trackMenu.SelectedItem().(trackItem)
	if !ok || a.tracks == nil {
		return a, nil
	}
	choice, err := a.tracks.Select(string(item.choice))
	if err != nil {
		a.err = err
		return a, nil
	}
	if a.root != nil {
		parcours.Filter(a.root, choice)
	}
	a.err = a.logbook.Track(string(choice))
	a.statusMsg = fmt.Sprintf("Parcours: %s", choice.Label())
	a.state = stateSkillList
	return a, nil
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	var content string
	switch a.state {
	case stateSkillList:
		content = a.skillMenu.View()
	case stateEditing:
		content = a.renderEditor(width - 4)
	case stateTrackSelect:
		content = a.trackMenu.View()
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ff41")).
		MarginBottom(1).
		Render(fmt.Sprintf("⬡ SKILLTREE · global %d%%", a.panel.Global(a.root)))
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-2)).
		Render(content)
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	status := a.statusMsg
	if a.err != nil {
		status = fmt.Sprintf("⚠ %v", a.err)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(status)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderEditor(width int) string {
	sel := a.selection
	accent := lipgloss.Color(sel.Color)
	title := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(fmt.Sprintf("%s · %s", sel.Code, sel.Name))
	lines := []string{title}
	if sel.Label != "" {
		lines = append(lines, fmt.Sprintf("NOM         %s", sel.Label))
		lines = append(lines, fmt.Sprintf("COMPÉTENCE  %s", sel.Group))
		lines = append(lines, fmt.Sprintf("ANNÉE       %s", sel.Year))
	} else {
		lines = append(lines, "Aucune donnée AC trouvée pour ce code.")
	}
	lines = append(lines, "", a.renderGauge(max(10, width-20), accent))
	state := "ACQUISITION EN COURS..."
	if score.Done(float64(a.value)) {
		state = "COMPÉTENCE VALIDÉE."
	}
	lines = append(lines, state, "", a.note.View())
	if history := a.renderHistory(); history != "" {
		lines = append(lines, "", history)
	}
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render("←/→ ±1    ↑/↓ ±10    Tab → note    Enter → sauvegarder    Esc → retour")
	lines = append(lines, hint)
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (a *App) renderGauge(width int, accent lipgloss.Color) string {
	filled := width * a.value / 100
	bar := lipgloss.NewStyle().Foreground(accent).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(lipgloss.Color("#333333")).Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3dmV", bar, a.value)
}

func (a *App) renderHistory() string {
	var rows []string
	for _, e := range a.panel.History() {
		if e.Code != string(a.selection.Code) {
			continue
		}
		row := fmt.Sprintf("%s  %3d", e.Time.Local().Format("02/01 15:04"), e.Value)
		if e.Note != "" {
			row += "  " + e.Note
		}
		rows = append(rows, row)
		if len(rows) == 5 {
			break
		}
	}
	if len(rows) == 0 {
		return ""
	}
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CCCCCC")).Render("HISTORIQUE")
	return head + "\n" + strings.Join(rows, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s (%d)", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}
