package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"selfrise/internal/atomicstore"
	"selfrise/internal/batch"
	"selfrise/internal/engine"
	"selfrise/internal/events"
	"selfrise/internal/storage"
)

func newTestModel(t *testing.T) (boardModel, *engine.Service) {
	t.Helper()
	store := atomicstore.New(storage.NewMemoryBackend(), atomicstore.DefaultOptions())
	svc := engine.NewService(store)
	cfg := batch.DefaultConfig()
	cfg.Window, cfg.MaxDelay = 10*time.Second, 20*time.Second
	b := batch.New(svc, cfg)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return newBoardModel(context.Background(), svc, b, nil), svc
}

func load(t *testing.T, m boardModel) boardModel {
	t.Helper()
	msg := m.loadCmd()()
	next, _ := m.Update(msg)
	return next.(boardModel)
}

func TestBoardShowsLedgerState(t *testing.T) {
	m, svc := newTestModel(t)
	ctx := context.Background()
	if _, err := svc.Grant(ctx, engine.GrantRequest{Amount: 300, Source: engine.SourceGoalCompletion, SkipLimits: true}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	m = load(t, m)
	if m.loading || m.err != nil {
		t.Fatalf("loading=%v err=%v", m.loading, m.err)
	}
	if m.snap.total != 300 || m.snap.progress.Level != 2 {
		t.Fatalf("snapshot total=%d level=%d, want 300/2", m.snap.total, m.snap.progress.Level)
	}
	view := m.View()
	for _, want := range []string{"Level 2", "XP 300", "Goal completion +300 XP", "300 XP from 1 transactions"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestBoardNavigationAndGrant(t *testing.T) {
	m, _ := newTestModel(t)
	m = load(t, m)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(boardModel)
	if m.selected != 1 {
		t.Fatalf("selected=%d, want 1", m.selected)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	next, _ = next.(boardModel).Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(boardModel)
	if m.selected != 0 {
		t.Fatalf("selected=%d, want 0", m.selected)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = next.(boardModel)
	if cmd == nil {
		t.Fatalf("space should queue a grant")
	}
	queued, ok := cmd().(queuedMsg)
	if !ok || queued.err != nil || !queued.res.Batched {
		t.Fatalf("queued=%+v, want a batched grant", queued)
	}
	next, _ = m.Update(queued)
	m = next.(boardModel)
	if !strings.Contains(m.lastLog, "Queued +10") {
		t.Fatalf("lastLog=%q", m.lastLog)
	}

	committed := m.flushCmd()().(committedMsg)
	if committed.err != nil || committed.res == nil || committed.res.TotalXP != 10 {
		t.Fatalf("flush=%+v", committed)
	}
	next, _ = m.Update(committed)
	m = next.(boardModel)
	if !strings.Contains(m.lastLog, "+10 XP, total 10") {
		t.Fatalf("lastLog=%q", m.lastLog)
	}
}

func TestBoardNotices(t *testing.T) {
	m, _ := newTestModel(t)
	m = load(t, m)
	for i := 0; i < noticeRows+2; i++ {
		next, _ := m.Update(eventMsg(events.Event{Kind: events.KindLevelUp, PreviousLevel: i, NewLevel: i + 1}))
		m = next.(boardModel)
	}
	if len(m.notices) != noticeRows {
		t.Fatalf("notices=%d, want %d", len(m.notices), noticeRows)
	}
	if !strings.Contains(m.View(), "Level up! 5 → 6") {
		t.Fatalf("view missing latest notice:\n%s", m.View())
	}
}
