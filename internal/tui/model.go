package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"selfrise/internal/batch"
	"selfrise/internal/engine"
	"selfrise/internal/events"
	"selfrise/internal/level"
	"selfrise/internal/ui"
)

const (
	smallGrant = 10
	largeGrant = 50
	recentRows = 6
	noticeRows = 4
)

type boardModel struct {
	ctx     context.Context
	svc     *engine.Service
	batcher *batch.Coalescer
	feed    <-chan events.Event

	width  int
	height int

	snap     snapshot
	sources  []engine.Source
	selected int
	notices  []events.Event

	lastLog string
	loading bool
	err     error
}

type snapshot struct {
	total      int64
	progress   level.Progress
	bySource   engine.XPBySource
	recent     []engine.XPTransaction
	multiplier *engine.ActiveMultiplier
	today      engine.DailyXPTracking
}

type loadedMsg struct {
	snap snapshot
	err  error
}

type queuedMsg struct {
	source engine.Source
	amount int64
	res    *batch.Result
	err    error
}

type committedMsg struct {
	res *engine.TransactionResult
	err error
}

type eventMsg events.Event

type feedClosedMsg struct{}

func newBoardModel(ctx context.Context, svc *engine.Service, batcher *batch.Coalescer, feed <-chan events.Event) boardModel {
	var sources []engine.Source
	for _, s := range engine.Sources {
		if s != engine.SourceMultiplierBonus {
			sources = append(sources, s)
		}
	}
	return boardModel{
		ctx:     ctx,
		svc:     svc,
		batcher: batcher,
		feed:    feed,
		sources: sources,
		loading: true,
		lastLog: "Loaded.",
	}
}

func (m boardModel) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.waitEvent())
}

func (m boardModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		var s snapshot
		var err error
		if s.total, err = m.svc.TotalXP(m.ctx); err != nil {
			return loadedMsg{err: err}
		}
		s.progress = m.svc.Curve().Progress(s.total)
		if s.bySource, err = m.svc.XPBySource(m.ctx); err != nil {
			return loadedMsg{err: err}
		}
		txs, err := m.svc.Transactions(m.ctx)
		if err != nil {
			return loadedMsg{err: err}
		}
		if len(txs) > recentRows {
			txs = txs[len(txs)-recentRows:]
		}
		s.recent = txs
		if s.multiplier, err = m.svc.ActiveMultiplier(m.ctx); err != nil {
			return loadedMsg{err: err}
		}
		if s.today, err = m.svc.DailyTracking(m.ctx); err != nil {
			return loadedMsg{err: err}
		}
		return loadedMsg{snap: s}
	}
}

func (m boardModel) waitEvent() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	feed := m.feed
	return func() tea.Msg {
		e, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(e)
	}
}

func (m boardModel) grantCmd(source engine.Source, amount int64) tea.Cmd {
	return func() tea.Msg {
		res, err := m.batcher.Grant(m.ctx, batch.Request{GrantRequest: engine.GrantRequest{
			Amount:      amount,
			Source:      source,
			Description: fmt.Sprintf("%s from the board", source.Label()),
		}})
		return queuedMsg{source: source, amount: amount, res: res, err: err}
	}
}

func (m boardModel) revokeCmd(source engine.Source, amount int64) tea.Cmd {
	return func() tea.Msg {
		res, err := m.svc.Revoke(m.ctx, engine.RevokeRequest{Amount: amount, Source: source})
		return committedMsg{res: res, err: err}
	}
}

func (m boardModel) flushCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := m.batcher.Flush(m.ctx)
		return committedMsg{res: res, err: err}
	}
}

func waitCommit(ctx context.Context, r *batch.Result) tea.Cmd {
	return func() tea.Msg {
		res, err := r.Wait(ctx)
		return committedMsg{res: res, err: err}
	}
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case loadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err != nil {
			m.lastLog = "Load failed: " + msg.err.Error()
			return m, nil
		}
		m.snap = msg.snap
		return m, nil
	case queuedMsg:
		if msg.err != nil {
			m.lastLog = "Action not counted: " + msg.err.Error()
			return m, nil
		}
		if out, _ := msg.res.Outcome(); out == nil {
			m.lastLog = fmt.Sprintf("Queued +%d %s (%d XP pending, level %d if committed)",
				msg.amount, msg.source.Label(), msg.res.PendingXP, msg.res.Optimistic.Level)
		}
		return m, waitCommit(m.ctx, msg.res)
	case committedMsg:
		if msg.err != nil {
			m.lastLog = "Action not counted: " + msg.err.Error()
			return m, m.loadCmd()
		}
		if msg.res == nil {
			m.lastLog = "Nothing pending."
			return m, nil
		}
		m.lastLog = describeResult(msg.res)
		return m, m.loadCmd()
	case eventMsg:
		m.notices = append(m.notices, events.Event(msg))
		if len(m.notices) > noticeRows {
			m.notices = m.notices[len(m.notices)-noticeRows:]
		}
		return m, tea.Batch(m.loadCmd(), m.waitEvent())
	case feedClosedMsg:
		m.feed = nil
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.loading = true
			m.lastLog = "Refreshing…"
			return m, m.loadCmd()
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down", "j":
			if m.selected < len(m.sources)-1 {
				m.selected++
			}
			return m, nil
		case " ", "enter":
			return m, m.grantCmd(m.sources[m.selected], smallGrant)
		case "+":
			return m, m.grantCmd(m.sources[m.selected], largeGrant)
		case "x":
			return m, m.revokeCmd(m.sources[m.selected], smallGrant)
		case "f":
			m.lastLog = "Flushing…"
			return m, m.flushCmd()
		}
	}
	return m, nil
}

func describeResult(res *engine.TransactionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%+d XP, total %d", res.XPGained, res.TotalXP)
	if res.Clipped {
		b.WriteString(" (clipped)")
	}
	switch {
	case res.LeveledUp:
		fmt.Fprintf(&b, " | level %d → %d", res.PreviousLevel, res.NewLevel)
		if res.MilestoneReached {
			b.WriteString(" milestone!")
		}
	case res.LeveledDown:
		fmt.Fprintf(&b, " | level %d → %d", res.PreviousLevel, res.NewLevel)
	}
	return b.String()
}

func (m boardModel) View() string {
	if m.err != nil {
		return "Error: " + m.err.Error() + "\n\nPress q to quit.\n"
	}

	header := m.renderHeader()
	sidebar := m.renderSidebar()
	main := m.renderMain()
	footer := m.renderFooter()

	leftW := 34
	if m.width > 0 {
		if maxLeft := m.width / 2; maxLeft < leftW {
			leftW = maxLeft
		}
		if leftW < 20 {
			leftW = 20
		}
	}

	linesLeft := strings.Split(sidebar, "\n")
	linesRight := strings.Split(main, "\n")
	rows := max(len(linesLeft), len(linesRight))

	var body strings.Builder
	for i := 0; i < rows; i++ {
		l, r := "", ""
		if i < len(linesLeft) {
			l = linesLeft[i]
		}
		if i < len(linesRight) {
			r = linesRight[i]
		}
		body.WriteString(padRight(l, leftW))
		body.WriteString("  ")
		body.WriteString(r)
		body.WriteString("\n")
	}
	return header + "\n\n" + body.String() + footer
}

func (m boardModel) renderHeader() string {
	if m.loading && m.snap.bySource == nil {
		return "SelfRise loading…"
	}
	p := m.snap.progress
	bar := ui.ProgressBar(p.XPInCurrentLevel, p.XPRequiredForNextLevel-p.XPRequiredForCurrentLevel, 30)
	line := fmt.Sprintf("SelfRise | Level %d %s | XP %d %s %.0f%%", p.Level, level.TitleFor(p.Level), m.snap.total, bar, p.ProgressPercent)
	if mult := m.snap.multiplier; mult != nil {
		line += fmt.Sprintf(" | %s %.2gx until %s", ui.IconMultiplier, mult.Factor, mult.ExpiresAt.Format("15:04"))
	}
	return line
}

func (m boardModel) renderSidebar() string {
	lines := []string{"Sources"}
	for i, s := range m.sources {
		cursor := "  "
		if i == m.selected {
			cursor = "> "
		}
		lines = append(lines, fmt.Sprintf("%s%-20s %6d", cursor, s, m.snap.bySource[s]))
	}
	if bonus := m.snap.bySource[engine.SourceMultiplierBonus]; bonus > 0 {
		lines = append(lines, fmt.Sprintf("  %-20s %6d", engine.SourceMultiplierBonus, bonus))
	}
	lines = append(lines, "")
	lines = append(lines, "Keys")
	lines = append(lines, "- ↑/↓ or j/k: pick source")
	lines = append(lines, fmt.Sprintf("- space: +%d XP", smallGrant))
	lines = append(lines, fmt.Sprintf("- +: +%d XP", largeGrant))
	lines = append(lines, fmt.Sprintf("- x: revoke %d XP", smallGrant))
	lines = append(lines, "- f: flush batch")
	lines = append(lines, "- r: refresh")
	lines = append(lines, "- q: quit")
	return strings.Join(lines, "\n")
}

func (m boardModel) renderMain() string {
	if m.loading {
		return "Loading…"
	}
	var out []string
	out = append(out, "Today")
	out = append(out, fmt.Sprintf("- %d XP from %d transactions", m.snap.today.TotalXP, m.snap.today.TransactionCount))
	if next, ok := level.NextMilestone(m.snap.progress.Level); ok {
		out = append(out, fmt.Sprintf("- next milestone: level %d", next))
	}
	if pending := m.batcher.Pending(); pending > 0 {
		out = append(out, fmt.Sprintf("- %d XP waiting to commit", pending))
	}

	out = append(out, "", "Recent")
	if len(m.snap.recent) == 0 {
		out = append(out, "(no transactions yet)")
	}
	for i := len(m.snap.recent) - 1; i >= 0; i-- {
		tx := m.snap.recent[i]
		out = append(out, fmt.Sprintf("- %s %+d %s", tx.CreatedAt.Format("15:04:05"), tx.Amount, tx.Description))
	}

	if len(m.notices) > 0 {
		out = append(out, "", "Notifications")
		for i := len(m.notices) - 1; i >= 0; i-- {
			out = append(out, "- "+noticeText(m.notices[i]))
		}
	}
	return strings.Join(out, "\n")
}

func noticeText(e events.Event) string {
	switch e.Kind {
	case events.KindLevelUp:
		if e.Milestone {
			return fmt.Sprintf("Milestone! Level %d reached", e.NewLevel)
		}
		return fmt.Sprintf("Level up! %d → %d", e.PreviousLevel, e.NewLevel)
	case events.KindRevoke:
		return fmt.Sprintf("%d XP removed (%s)", e.Amount, e.Source)
	default:
		return fmt.Sprintf("+%d XP from %s at %s", e.Amount, e.Source, e.Timestamp.Format(time.Kitchen))
	}
}

func (m boardModel) renderFooter() string {
	return "\n" + m.lastLog
}

func padRight(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) >= width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}
