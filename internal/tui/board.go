package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"selfrise/internal/batch"
	"selfrise/internal/engine"
	"selfrise/internal/events"
)

// RunBoard shows the XP dashboard until the user quits. Grants made from the
// board go through batcher; the open batch is flushed on exit.
func RunBoard(ctx context.Context, svc *engine.Service, batcher *batch.Coalescer, bus *events.Bus, out io.Writer) error {
	feed, cancel := bus.Subscribe(32)
	defer cancel()

	m := newBoardModel(ctx, svc, batcher, feed)
	p := tea.NewProgram(m, tea.WithOutput(out))
	_, err := p.Run()
	if _, ferr := batcher.Flush(ctx); err == nil {
		err = ferr
	}
	return err
}
