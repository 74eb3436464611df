package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeScroller struct {
	heights []int
	calls   int
	scrolls []int
	err     error
}

func (f *fakeScroller) ScrollHeight() (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	h := f.heights[min(f.calls, len(f.heights)-1)]
	f.calls++
	return h, nil
}

func (f *fakeScroller) ScrollTo(y int) error {
	f.scrolls = append(f.scrolls, y)
	return nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func TestScrollUntilStable_StopsWhenHeightSettles(t *testing.T) {
	s := &fakeScroller{heights: []int{100, 200, 300, 300, 400}}

	n, err := ScrollUntilStable(context.Background(), s, 15, 0, testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 scrolls, got %d", n)
	}
	want := []int{100, 200, 300, 0}
	if len(s.scrolls) != len(want) {
		t.Fatalf("expected scrolls %v, got %v", want, s.scrolls)
	}
	for i := range want {
		if s.scrolls[i] != want[i] {
			t.Errorf("scroll %d: expected %d, got %d", i, want[i], s.scrolls[i])
		}
	}
}

func TestScrollUntilStable_MaxScrolls(t *testing.T) {
	s := &fakeScroller{heights: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}

	n, err := ScrollUntilStable(context.Background(), s, 4, 0, testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 scrolls, got %d", n)
	}
	if last := s.scrolls[len(s.scrolls)-1]; last != 0 {
		t.Errorf("expected final scroll to top, got %d", last)
	}
}

func TestScrollUntilStable_Error(t *testing.T) {
	boom := errors.New("eval failed")
	s := &fakeScroller{heights: []int{1}, err: boom}

	if _, err := ScrollUntilStable(context.Background(), s, 4, 0, testLogger); !errors.Is(err, boom) {
		t.Fatalf("expected eval error, got %v", err)
	}
}

func TestScrollUntilStable_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeScroller{heights: []int{1, 2, 3}}

	n, err := ScrollUntilStable(ctx, s, 10, 0, testLogger)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected no scrolls after cancellation, got %d", n)
	}
}
