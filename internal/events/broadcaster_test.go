package events_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/tunedl/internal/events"
)

func fixedUUID(s string) uuid.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func receive(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()

	select {
	case ev := <-ch:
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	return events.Event{}
}

func TestBroadcast(t *testing.T) {
	b := events.NewBroadcaster(10)

	listener := make(chan events.Event, 1)
	b.RegisterListener("listener1", listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	p := events.Progress{
		TaskID:         fixedUUID("00000000-0000-0000-0000-000000000001"),
		Progress:       10,
		DownloadedSize: 100,
		TotalSize:      1000,
		Speed:          50,
	}
	b.Emit(events.KindProgress, p)

	ev := receive(t, listener)
	if ev.Kind != events.KindProgress {
		t.Errorf("expected kind %s, got %s", events.KindProgress, ev.Kind)
	}
	if !reflect.DeepEqual(ev.Payload, p) {
		t.Errorf("expected payload %v, got %v", p, ev.Payload)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	c := events.Completed{TaskID: p.TaskID, Filepath: "/music/a.mp3", FileSize: 1000}
	b.Emit(events.KindCompleted, c)

	ev = receive(t, listener)
	if !reflect.DeepEqual(ev.Payload, c) {
		t.Errorf("expected payload %v, got %v", c, ev.Payload)
	}

	b.Stop()
	if _, ok := <-listener; ok {
		t.Error("expected listener channel to be closed after Stop")
	}

	// Emitting after Stop must not block.
	b.Emit(events.KindFailed, events.Failed{TaskID: p.TaskID, Error: "x"})
	b.Stop()
}

func TestMultipleListeners(t *testing.T) {
	b := events.NewBroadcaster(10)

	l1 := make(chan events.Event, 1)
	l2 := make(chan events.Event, 1)
	b.RegisterListener("l1", l1)
	b.RegisterListener("l2", l2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	f := events.Failed{TaskID: fixedUUID("00000000-0000-0000-0000-000000000005"), Error: "boom"}
	b.Emit(events.KindFailed, f)

	for _, l := range []chan events.Event{l1, l2} {
		ev := receive(t, l)
		if !reflect.DeepEqual(ev.Payload, f) {
			t.Errorf("expected %v, got %v", f, ev.Payload)
		}
	}

	b.UnregisterListener("l2")
	b.Emit(events.KindFailed, f)
	receive(t, l1)

	select {
	case ev := <-l2:
		t.Errorf("unregistered listener received %v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	b.Stop()
}

func TestSlowListenerDoesNotBlock(t *testing.T) {
	b := events.NewBroadcaster(10)

	listener := make(chan events.Event, 1)
	b.RegisterListener("slow", listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	initial := events.Event{Kind: events.KindProgress, Payload: "initial"}
	listener <- initial

	b.Emit(events.KindProgress, events.Progress{Progress: 50})
	time.Sleep(100 * time.Millisecond)

	select {
	case ev := <-listener:
		if !reflect.DeepEqual(ev, initial) {
			t.Errorf("expected initial value to remain, got %v", ev)
		}
	default:
		t.Error("expected to receive a value from listener")
	}

	b.Stop()
}

func TestProgressDroppedWhenBufferFull(t *testing.T) {
	b := events.NewBroadcaster(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Not started: the first event fills the buffer, the rest are dropped.
		for range 5 {
			b.Emit(events.KindProgress, events.Progress{})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("progress emission blocked on a full buffer")
	}

	b.Stop()
}

func TestSinkFunc(t *testing.T) {
	var got []events.Kind
	sink := events.SinkFunc(func(kind events.Kind, _ any) { got = append(got, kind) })

	sink.Emit(events.KindProgress, nil)
	sink.Emit(events.KindCompleted, nil)
	events.NopSink{}.Emit(events.KindFailed, nil)
	events.LogSink{}.Emit(events.KindFailed, events.Failed{Error: "logged"})

	if !reflect.DeepEqual(got, []events.Kind{events.KindProgress, events.KindCompleted}) {
		t.Errorf("unexpected kinds %v", got)
	}
}
