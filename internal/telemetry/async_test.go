package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	delay   time.Duration
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// Should not panic
	EmitAsync(nil, &Event{Type: "test"})
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, nil)
	time.Sleep(20 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("nil event should not be emitted, got %d", n)
	}
}

func TestEmitAsync_Delivers(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 1), emitErr: errors.New("ignored")}
	EmitAsync(emitter, &Event{Type: "login_succeeded", UserID: "u1"})
	select {
	case <-emitter.done:
	case <-time.After(time.Second):
		t.Fatal("event not emitted")
	}
	events := emitter.getEvents()
	if len(events) != 1 || events[0].Type != "login_succeeded" {
		t.Errorf("events = %+v", events)
	}
}

func TestMultiEmitter(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: errors.New("boom")}
	c := &mockEventEmitter{}
	err := MultiEmitter{a, nil, b, c}.Emit(context.Background(), &Event{Type: "x"})
	if err == nil {
		t.Fatal("want joined error")
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 || len(c.getEvents()) != 1 {
		t.Error("every emitter should receive the event")
	}
}
