package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/lorekeeper/chronicle/pkg/character"
)

const contextRecentN = 10

// ConsoleUI is the BubbleTea model that runs the save browser.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config *ConsoleConfig
	client *http.Client

	characters []character.Summary
	selected   int
	context    *ContextView

	detailViewport viewport.Model
	ready          bool
	width          int
	height         int
	err            error
	loading        bool
	statusLine     string

	showQuitModal bool
}

type charactersLoadedMsg struct {
	characters []character.Summary
	total      int
	err        error
}

type contextLoadedMsg struct {
	context *ContextView
	err     error
}

type copiedMsg struct {
	id  string
	err error
}

var (
	listPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	detailPanelStyle = lipgloss.NewStyle().
				PaddingTop(2).
				PaddingBottom(0).
				PaddingLeft(0).
				PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("205")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	vp := viewport.New(50, 20)
	vp.MouseWheelEnabled = true

	return ConsoleUI{
		config:         cfg,
		client:         client,
		detailViewport: vp,
		loading:        true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadCharacters()
}

func (m ConsoleUI) loadCharacters() tea.Cmd {
	return func() tea.Msg {
		characters, total, err := listCharacters(m.client, m.config.APIBaseURL, m.config.UserID)
		return charactersLoadedMsg{characters, total, err}
	}
}

func (m ConsoleUI) loadContext(characterID string) tea.Cmd {
	return func() tea.Msg {
		view, err := getContext(m.client, m.config.APIBaseURL, m.config.UserID, characterID, contextRecentN)
		return contextLoadedMsg{view, err}
	}
}

func (m ConsoleUI) copySelectedID() tea.Cmd {
	if m.selected >= len(m.characters) {
		return nil
	}
	id := m.characters[m.selected].CharacterID
	return func() tea.Msg {
		return copiedMsg{id, clipboard.WriteAll(id)}
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var vpCmd tea.Cmd

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.detailViewport, vpCmd = m.detailViewport.Update(msg)
		return m, vpCmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		listWidth := int(float64(m.width)*0.35) - 4
		detailWidth := m.width - listWidth - 6
		m.detailViewport.Width = detailWidth - 2
		m.detailViewport.Height = m.height - 4
		m.ready = true
		m.writeDetailContent()

	case charactersLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.characters = msg.characters
		if m.selected >= len(m.characters) {
			m.selected = 0
		}
		m.statusLine = fmt.Sprintf("%d saves", msg.total)
		if len(m.characters) > 0 {
			m.loading = true
			return m, m.loadContext(m.characters[m.selected].CharacterID)
		}
		m.writeDetailContent()

	case contextLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.context = msg.context
		}
		m.writeDetailContent()

	case copiedMsg:
		if msg.err != nil {
			m.statusLine = "copy failed: " + msg.err.Error()
		} else {
			m.statusLine = "copied " + msg.id[:8] + "... to clipboard"
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyUp:
			if m.selected > 0 {
				m.selected--
				m.loading = true
				return m, m.loadContext(m.characters[m.selected].CharacterID)
			}
		case tea.KeyDown:
			if m.selected < len(m.characters)-1 {
				m.selected++
				m.loading = true
				return m, m.loadContext(m.characters[m.selected].CharacterID)
			}
		default:
			switch msg.String() {
			case "q":
				m.showQuitModal = true
				return m, nil
			case "r":
				m.loading = true
				m.statusLine = "refreshing..."
				return m, m.loadCharacters()
			case "c":
				return m, m.copySelectedID()
			}
		}
	}

	m.detailViewport, vpCmd = m.detailViewport.Update(msg)
	return m, vpCmd
}

// writeDetailContent rebuilds the right-hand panel for the current width.
func (m *ConsoleUI) writeDetailContent() {
	width := m.detailViewport.Width - 4
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("CHRONICLE") + "\n\n")

	switch {
	case m.err != nil:
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	case m.loading:
		content.WriteString(loadingStyle.Render("Loading...") + "\n")
	case len(m.characters) == 0:
		content.WriteString("No saves yet for this user.\n")
	case m.context != nil:
		content.WriteString(m.renderContext(width))
	}

	m.detailViewport.SetContent(content.String())
	m.detailViewport.GotoTop()
}

func (m *ConsoleUI) renderContext(width int) string {
	ctx := m.context
	var b strings.Builder

	b.WriteString(labelStyle.Render("Character: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s the %s %s",
		ctx.PlayerState.Identity.Name, ctx.PlayerState.Identity.Race, ctx.PlayerState.Identity.Class)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Status: "))
	b.WriteString(string(ctx.PlayerState.Status) + "\n")
	b.WriteString(labelStyle.Render("ID: "))
	b.WriteString(ctx.CharacterID + "\n\n")

	b.WriteString(labelStyle.Render("Quest: "))
	if ctx.Quest != nil {
		b.WriteString(ctx.Quest.Name + " (" + string(ctx.Quest.CompletionState) + ")\n")
		b.WriteString(wordwrap.String(ctx.Quest.Description, width) + "\n\n")
	} else {
		b.WriteString("none\n\n")
	}

	b.WriteString(labelStyle.Render("Combat: "))
	if ctx.Combat.Active && ctx.Combat.State != nil {
		b.WriteString(fmt.Sprintf("turn %d, %d enemies\n", ctx.Combat.State.Turn, len(ctx.Combat.State.Enemies)))
		for _, e := range ctx.Combat.State.Enemies {
			b.WriteString(fmt.Sprintf("  • %s (%s)\n", e.Name, e.Status))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("inactive\n\n")
	}

	b.WriteString(labelStyle.Render(fmt.Sprintf("Points of Interest (%d total):", ctx.POIs.Total)) + "\n")
	if len(ctx.POIs.Sampled) == 0 {
		b.WriteString("  none\n")
	}
	for _, p := range ctx.POIs.Sampled {
		marker := " "
		if p.Visited {
			marker = "✓"
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", marker, p.Name))
	}
	b.WriteString("\n")

	b.WriteString(labelStyle.Render(fmt.Sprintf("Recent Turns (%d):", ctx.Narrative.ReturnedN)) + "\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n")
	for _, t := range ctx.Narrative.Turns {
		b.WriteString(labelStyle.Render("You: "))
		b.WriteString(wordwrap.String(t.PlayerAction, width) + "\n")
		b.WriteString(valueStyle.Render("GM: "))
		b.WriteString(wordwrap.String(t.GMResponse, width) + "\n\n")
	}

	return b.String()
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				return m, nil
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Close the save browser?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to stay"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderList(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SAVES") + "\n\n")

	if m.loading && len(m.characters) == 0 {
		b.WriteString(loadingStyle.Render("Loading...") + "\n")
	}
	for i, c := range m.characters {
		line := fmt.Sprintf("%s (%s %s)", c.Name, c.Race, c.Class)
		if len(line) > width-4 && width > 7 {
			line = line[:width-7] + "..."
		}
		if i == m.selected {
			b.WriteString(selectedStyle.Render("▶ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.statusLine != "" {
		b.WriteString(promptStyle.Render(m.statusLine) + "\n\n")
	}
	b.WriteString(promptStyle.Render("↑/↓ select") + "\n")
	b.WriteString(promptStyle.Render("r refresh") + "\n")
	b.WriteString(promptStyle.Render("c copy id") + "\n")
	b.WriteString(promptStyle.Render("q quit") + "\n")
	return b.String()
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	listWidth := int(float64(m.width)*0.35) - 4
	detailWidth := m.width - listWidth - 6

	listPanel := listPanelStyle.Width(listWidth).Height(m.height - 2).Render(
		m.renderList(listWidth),
	)
	detailPanel := detailPanelStyle.Width(detailWidth).Height(m.height - 2).Render(
		m.detailViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, listPanel, detailPanel)
}
