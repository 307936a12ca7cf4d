package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_AcquireAndRelease(t *testing.T) {
	p := NewChanPool(2)
	ctx := context.Background()

	r1, ok := p.Acquire(ctx)
	if !ok {
		t.Fatalf("expected first slot")
	}
	r2, ok := p.Acquire(ctx)
	if !ok {
		t.Fatalf("expected second slot")
	}
	if p.InUse() != 2 {
		t.Fatalf("expected 2 in use, got %d", p.InUse())
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(short); ok {
		t.Fatalf("expected pool to be full")
	}

	r1()
	r2()
	if p.InUse() != 0 {
		t.Fatalf("expected 0 in use, got %d", p.InUse())
	}
}

func TestChanPool_CanceledContextNeverTakesSlot(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected canceled context to fail")
	}
	if p.InUse() != 0 {
		t.Fatalf("expected no slot taken")
	}
}

func TestChanPool_MinimumSize(t *testing.T) {
	if got := NewChanPool(0).Cap(); got != 1 {
		t.Fatalf("expected cap 1, got %d", got)
	}
}
