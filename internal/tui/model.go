package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ingres/internal/chunker"
	"ingres/internal/domain"
)

// ChatPort is the TUI-facing subset of the query service.
type ChatPort interface {
	Process(ctx context.Context, q domain.Query) domain.Response
}

type exchange struct {
	query    string
	response domain.Response
}

type answerMsg struct {
	query    string
	response domain.Response
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx       context.Context
	service   ChatPort
	input     textinput.Model
	viewport  viewport.Model
	history   []exchange
	sources   []domain.Source
	sessionID string
	header    string
	status    string
	cursor    int
	busy      bool
	ready     bool
	lastQuery string
}

// New creates a chat model. header is shown under the title, typically the
// index and store health line.
func New(ctx context.Context, service ChatPort, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about groundwater, e.g. what is rainfall in bihar?"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, service: service, input: ti, viewport: vp, header: header, status: "Ready. Enter to ask, up/down to browse sources, ctrl+c to quit."}
}

// SessionID is the conversation id assigned by the first answer.
func (m Model) SessionID() string { return m.sessionID }

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 2 + 1 + qh + 1 // header, source lines, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		m.history = append(m.history, exchange{query: msg.query, response: msg.response})
		m.sessionID = msg.response.SessionID
		m.sources = msg.response.Sources
		m.cursor = 0
		m.status = fmt.Sprintf("intent=%s  confidence=%.2f  %s  %d sources",
			msg.response.Intent, msg.response.Confidence, msg.response.Latency.Round(time.Millisecond), len(m.sources))
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.lastQuery = q
			m.input.SetValue("")
			m.status = "Thinking..."
			return m, m.ask(q)
		case "down":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				return m, nil
			}
		case "up":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	ctx, svc, sessionID := m.ctx, m.service, m.sessionID
	return func() tea.Msg {
		return answerMsg{query: q, response: svc.Process(ctx, domain.Query{Text: q, SessionID: sessionID})}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the transcript, the selected source and the input.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := lipgloss.NewStyle().Bold(true).Render("INGRES Groundwater Assistant")
	header := dimStyle.Render(m.header)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return title + "\n" + header + "\n" + transcript + "\n" + m.renderCurrentSource() + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var sb strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(userStyle.Render("You: " + ex.query))
		sb.WriteString("\n")
		sb.WriteString(ex.response.Answer)
	}
	return sb.String()
}

func (m Model) renderCurrentSource() string {
	if len(m.sources) == 0 {
		return dimStyle.Render("Sources: none") + "\n"
	}
	s := m.sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d  %s  %s", m.cursor+1, len(m.sources), s.Type, s.Origin)
	if s.Type == domain.SourceUnstructured {
		title += fmt.Sprintf("  score=%.3f", s.Score)
	}
	return dimStyle.Render(title) + "\n" + highlightBestSentence(s.Content, m.lastQuery)
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe      = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’.][\p{L}\p{N}]+)*`)
)

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	sentences := chunker.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestScore > 0 {
		sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
