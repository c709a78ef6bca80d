package correlator

import (
	"context"
	"testing"
	"time"

	"github.com/kenobot/kenobot/internal/bus"
)

func TestRegister_ConflictOnDuplicateChatID(t *testing.T) {
	b := bus.New(nil, nil)
	c := New(b, "api")

	if _, err := c.Register("c1"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := c.Register("c1"); err != ErrConflict {
		t.Fatalf("second Register err = %v, want ErrConflict", err)
	}
}

func TestWait_ResolvesOnMatchingOutgoing(t *testing.T) {
	b := bus.New(nil, nil)
	c := New(b, "api")

	entry, err := c.Register("c1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	go func() {
		b.Fire(bus.TypeOutgoingMessage, "agent", "", map[string]any{
			"chatId": "c1",
			"text":   "General Kenobi!",
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	text, err := c.Wait(ctx, entry)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if text != "General Kenobi!" {
		t.Fatalf("text = %q", text)
	}
	if c.Pending("c1") {
		t.Fatal("entry still pending after resolution")
	}
}

func TestWait_TimesOutWithoutReply(t *testing.T) {
	b := bus.New(nil, nil)
	c := New(b, "api")

	entry, err := c.Register("c1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = c.Wait(ctx, entry)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if c.Pending("c1") {
		t.Fatal("entry still pending after timeout")
	}
}

func TestWait_LateReplyAfterTimeoutIsDropped(t *testing.T) {
	b := bus.New(nil, nil)
	c := New(b, "api")

	entry, err := c.Register("c1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	c.Wait(ctx, entry)

	// The late reply finds no table entry for c1 (the timeout removed it)
	// and is dropped.
	b.Fire(bus.TypeOutgoingMessage, "agent", "", map[string]any{
		"chatId": "c1",
		"text":   "late",
	})

	// A second registration for the same chatId must now succeed, and the
	// dropped late reply must not resolve it.
	entry2, err := c.Register("c1")
	if err != nil {
		t.Fatalf("Register after timeout: %v", err)
	}

	select {
	case res := <-entry2.result:
		t.Fatalf("entry2 resolved unexpectedly with %+v", res)
	case <-time.After(20 * time.Millisecond):
		// expected: nothing arrived for entry2
	}
}

func TestShutdown_RejectsAllPending(t *testing.T) {
	b := bus.New(nil, nil)
	c := New(b, "api")

	e1, _ := c.Register("c1")
	e2, _ := c.Register("c2")

	c.Shutdown()

	ctx := context.Background()
	if _, err := c.Wait(ctx, e1); err != ErrShutdown {
		t.Fatalf("e1 err = %v, want ErrShutdown", err)
	}
	if _, err := c.Wait(ctx, e2); err != ErrShutdown {
		t.Fatalf("e2 err = %v, want ErrShutdown", err)
	}
	if c.Size() != 0 {
		t.Fatalf("Size = %d, want 0", c.Size())
	}
}
