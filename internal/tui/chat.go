// Package tui is the terminal chat frontend.
package tui

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/present"
	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/transport"
)

type chatState int

const (
	chatInputState chatState = iota
	chatStreamState
)

// Turner runs one turn and streams its deliverable tokens to sink.
// *transport.Shim satisfies it.
type Turner interface {
	Turn(ctx context.Context, text string, sink transport.Sink) (*proto.Conversation, error)
}

// Options tune the chat UI.
type Options struct {
	WordWrap int
	// Prompt prefixes the input line.
	Prompt string
	// Quiet hides the spinner.
	Quiet bool
	// InitialPrompt is submitted as soon as the UI starts.
	InitialPrompt string
}

// Chat is the Bubble Tea model for the interactive betting assistant.
type Chat struct {
	Error *errs.Error

	state    chatState
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	glam     *glamour.TermRenderer
	renderer *lipgloss.Renderer
	styles   present.Styles

	historyBuf bytes.Buffer // rendered transcript so far
	streamBuf  bytes.Buffer // answer being streamed

	turner     Turner
	opts       Options
	ctx        context.Context
	turn       int
	turnCancel context.CancelFunc
	events     <-chan transport.Event

	width  int
	height int

	renderScheduled bool
	dirtyOutput     bool
	waitingSince    time.Time
}

// NewChat creates the Bubble Tea model for interactive chat.
func NewChat(ctx context.Context, r *lipgloss.Renderer, turner Turner, opts Options) *Chat {
	if opts.Prompt == "" {
		opts.Prompt = "betbox> "
	}
	gr, _ := present.NewMarkdownRenderer(opts.WordWrap)

	ti := textinput.New()
	ti.Prompt = opts.Prompt
	ti.Placeholder = "Which competitions are on for soccer?"
	ti.Focus()
	ti.CharLimit = 0

	vp := viewport.New(0, 0)
	vp.GotoBottom()

	styles := present.MakeStyles(r)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Speaker))

	return &Chat{
		state:    chatInputState,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		glam:     gr,
		renderer: r,
		styles:   styles,
		turner:   turner,
		opts:     opts,
		ctx:      ctx,
	}
}

// chatSubmitMsg is sent when the user presses Enter with non-empty input.
type chatSubmitMsg struct {
	prompt string
}

// chatTokenMsg carries one streamed token of the answer.
type chatTokenMsg struct {
	turn    int
	content string
	events  <-chan transport.Event
}

// chatTurnDoneMsg signals the turn finished, successfully or not.
type chatTurnDoneMsg struct {
	turn  int
	final proto.Message
	err   error
}

type chatRenderMsg struct{}

type chatWaitingTickMsg struct{}

// Init implements tea.Model.
func (c *Chat) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if !c.opts.Quiet {
		cmds = append(cmds, c.spinner.Tick)
	}
	if prompt := c.opts.InitialPrompt; prompt != "" {
		cmds = append(cmds, func() tea.Msg {
			return chatSubmitMsg{prompt: prompt}
		})
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.resizeViewport()
		c.refreshViewport()
		return c, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if c.state == chatStreamState {
				c.cancelTurn()
				c.finishTurn(c.styles.Comment.Render("(cancelled)"))
				return c, nil
			}
			return c, tea.Quit
		case "enter":
			if c.state != chatInputState {
				break
			}
			text := strings.TrimSpace(c.input.Value())
			if text == "" {
				return c, nil
			}
			if text == "/exit" || text == "/quit" {
				return c, tea.Quit
			}
			c.input.SetValue("")
			return c, func() tea.Msg {
				return chatSubmitMsg{prompt: text}
			}
		}

	case chatSubmitMsg:
		fmt.Fprintf(&c.historyBuf, "> %s\n\n", msg.prompt)
		c.streamBuf.Reset()
		c.waitingSince = time.Now()
		c.state = chatStreamState
		c.resizeViewport()
		c.dirtyOutput = true
		c.refreshViewport()
		return c, tea.Batch(c.startTurnCmd(msg.prompt), c.waitingTickCmd())

	case chatTokenMsg:
		if msg.turn != c.turn {
			return c, nil
		}
		c.waitingSince = time.Time{}
		c.streamBuf.WriteString(msg.content)
		c.resizeViewport()
		c.dirtyOutput = true
		if !c.renderScheduled {
			c.renderScheduled = true
			cmds = append(cmds, c.renderTickCmd())
		}
		cmds = append(cmds, c.receiveCmd(msg.turn, msg.events))
		return c, tea.Batch(cmds...)

	case chatTurnDoneMsg:
		if msg.turn != c.turn {
			return c, nil
		}
		c.cancelTurn()
		if msg.err != nil {
			reason := errs.ReasonOf(msg.err, "The assistant could not answer.")
			c.finishTurn(c.styles.ErrorHeader.String() + " " + reason)
			return c, nil
		}
		if c.streamBuf.Len() == 0 {
			c.streamBuf.WriteString(msg.final.Content)
		}
		c.finishTurn("")
		return c, nil

	case chatWaitingTickMsg:
		if c.state == chatStreamState && c.streamBuf.Len() == 0 {
			return c, c.waitingTickCmd()
		}
		return c, nil

	case chatRenderMsg:
		c.renderScheduled = false
		if c.dirtyOutput {
			c.refreshViewport()
		}
		return c, nil

	case errs.Error:
		e := msg
		c.Error = &e
		return c, tea.Quit

	case error:
		e := errs.Error{Err: msg}
		c.Error = &e
		return c, tea.Quit
	}

	if c.state == chatInputState {
		var cmd tea.Cmd
		c.input, cmd = c.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	if !c.opts.Quiet {
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return c, tea.Batch(cmds...)
}

// View implements tea.Model.
func (c *Chat) View() string {
	if c.width == 0 || c.height == 0 {
		return ""
	}

	divider := c.styles.Comment.Render(strings.Repeat("─", max(c.width, 1)))

	if c.state == chatStreamState && c.streamBuf.Len() == 0 {
		status := c.waitingStatus(time.Now())
		if !c.opts.Quiet {
			status = c.spinner.View() + " " + status
		}
		return c.viewport.View() + "\n" + divider + "\n" + status
	}
	return c.viewport.View() + "\n" + divider + "\n" + c.input.View()
}

// Transcript returns the rendered conversation so far as markdown.
func (c *Chat) Transcript() string {
	return c.historyBuf.String()
}

func (c *Chat) startTurnCmd(prompt string) tea.Cmd {
	c.cancelTurn()
	c.turn++
	turn := c.turn

	ctx, cancel := context.WithCancel(c.ctx)
	c.turnCancel = cancel
	sink := transport.NewChanSink(ctx, transport.DefaultBuffer)
	c.events = sink.Events()

	if c.turner == nil {
		return func() tea.Msg { return errs.Error{Reason: "Agent is not available"} }
	}
	go func() {
		defer sink.Close()
		_, _ = c.turner.Turn(ctx, prompt, sink)
	}()
	return c.receiveCmd(turn, sink.Events())
}

func (c *Chat) receiveCmd(turn int, events <-chan transport.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		switch {
		case !ok:
			return chatTurnDoneMsg{turn: turn}
		case ev.Err != nil:
			return chatTurnDoneMsg{turn: turn, err: ev.Err}
		case ev.Done:
			return chatTurnDoneMsg{turn: turn, final: ev.Final}
		default:
			return chatTokenMsg{turn: turn, content: ev.Token, events: events}
		}
	}
}

// finishTurn moves the streamed answer into the transcript, followed by an
// optional note, and returns to input.
func (c *Chat) finishTurn(note string) {
	if c.streamBuf.Len() > 0 {
		fmt.Fprintf(&c.historyBuf, "%s\n\n", c.streamBuf.String())
		c.streamBuf.Reset()
	}
	if note != "" {
		fmt.Fprintf(&c.historyBuf, "%s\n\n", note)
	}
	c.waitingSince = time.Time{}
	c.state = chatInputState
	c.dirtyOutput = true
	c.resizeViewport()
	c.refreshViewport()
}

func (c *Chat) cancelTurn() {
	if c.turnCancel != nil {
		c.turnCancel()
		c.turnCancel = nil
	}
}

func (c *Chat) refreshViewport() {
	combined := c.historyBuf.String() + c.streamBuf.String()
	if combined == "" {
		return
	}

	rendered := combined
	if c.glam != nil {
		if out, err := c.glam.Render(combined); err == nil {
			rendered = out
		}
	}
	rendered = strings.TrimRightFunc(rendered, unicode.IsSpace)
	rendered += "\n"

	truncated := c.renderer.NewStyle().MaxWidth(c.width).Render(rendered)

	wasAtBottom := c.viewport.ScrollPercent() >= 1.0
	c.viewport.SetContent(truncated)
	if wasAtBottom {
		c.viewport.GotoBottom()
	}
	c.dirtyOutput = false
}

func (c *Chat) renderTickCmd() tea.Cmd {
	const renderInterval = 33 * time.Millisecond
	return tea.Tick(renderInterval, func(time.Time) tea.Msg {
		return chatRenderMsg{}
	})
}

func (c *Chat) waitingTickCmd() tea.Cmd {
	const waitingInterval = 200 * time.Millisecond
	return tea.Tick(waitingInterval, func(time.Time) tea.Msg {
		return chatWaitingTickMsg{}
	})
}

func (c *Chat) resizeViewport() {
	if c.width > 0 {
		c.viewport.Width = c.width
	}
	const footerLines = 2
	c.viewport.Height = max(c.height-footerLines, 1)
}

func (c *Chat) waitingStatus(now time.Time) string {
	if c.waitingSince.IsZero() {
		return c.styles.Comment.Render("Waiting for response...")
	}
	elapsed := max(now.Sub(c.waitingSince), 0)
	return c.styles.Comment.Render("Waiting for response... [" + formatElapsedClock(elapsed) + "]")
}

func formatElapsedClock(d time.Duration) string {
	totalSeconds := int(d / time.Second)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
