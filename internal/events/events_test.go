package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelA()
	defer cancelB()

	e := Event{Kind: KindGrant, Amount: 50, Source: "habit-completion", Timestamp: time.Now()}
	bus.Emit(e)

	require.Equal(t, e, <-a)
	require.Equal(t, e, <-b)
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Emit(Event{Amount: 1})
	bus.Emit(Event{Amount: 2})

	assert.Equal(t, int64(1), bus.Dropped())
	assert.Equal(t, int64(1), (<-ch).Amount)
}

func TestCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	bus.Emit(Event{Amount: 1})
	assert.Equal(t, int64(0), bus.Dropped())
}

func TestMultiAndRecorder(t *testing.T) {
	var r1, r2 Recorder
	sink := Multi(&r1, nil, &r2, Nop)
	sink.Emit(Event{Kind: KindLevelUp, NewLevel: 5})

	assert.Len(t, r1.Events(), 1)
	assert.Len(t, r2.Events(), 1)
	assert.Equal(t, 5, r2.Events()[0].NewLevel)
}

func TestQueueDeliversInOrderAndDrainsOnClose(t *testing.T) {
	var rec Recorder
	q := NewQueue(&rec, 16, nil)
	for i := 1; i <= 10; i++ {
		q.Emit(Event{Amount: int64(i)})
	}
	require.NoError(t, q.Close(context.Background()))

	evs := rec.Events()
	require.Len(t, evs, 10)
	for i, e := range evs {
		assert.Equal(t, int64(i+1), e.Amount)
	}

	q.Emit(Event{Amount: 11})
	assert.Equal(t, int64(1), q.Dropped())
	require.NoError(t, q.Close(context.Background()))
}

func TestQueueEmitDoesNotWaitOnSink(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue(SinkFunc(func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}), 1, nil)

	q.Emit(Event{Amount: 1})
	<-started
	q.Emit(Event{Amount: 2})
	q.Emit(Event{Amount: 3})
	assert.Equal(t, int64(1), q.Dropped())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, q.Close(context.Background()))
}

func TestQueueReportsPanics(t *testing.T) {
	var (
		rec    Recorder
		panics []any
	)
	q := NewQueue(SinkFunc(func(e Event) {
		if e.Amount == 2 {
			panic("observer bug")
		}
		rec.Emit(e)
	}), 4, func(e Event, r any) {
		panics = append(panics, r)
	})
	q.Emit(Event{Amount: 1})
	q.Emit(Event{Amount: 2})
	q.Emit(Event{Amount: 3})
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, []any{"observer bug"}, panics)
	assert.Len(t, rec.Events(), 2)
}

func TestDetachKeepsNonBlockingSinks(t *testing.T) {
	bus := NewBus()
	sink, closeSink := Detach(bus, 8, nil)
	assert.Same(t, bus, sink)
	require.NoError(t, closeSink(context.Background()))

	var rec Recorder
	sink, closeSink = Detach(SinkFunc(rec.Emit), 8, nil)
	_, queued := sink.(*Queue)
	require.True(t, queued)
	sink.Emit(Event{Kind: KindRevoke})
	require.NoError(t, closeSink(context.Background()))
	assert.Len(t, rec.Events(), 1)
}
