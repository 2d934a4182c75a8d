package resilience

import (
	"testing"
	"time"
)

func TestRestartBudgetAllowsUpToLimit(t *testing.T) {
	b := NewRestartBudget(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("restart %d denied within budget", i+1)
		}
	}
	if b.Allow() {
		t.Fatal("restart allowed past budget")
	}
	if got := b.Used(); got != 3 {
		t.Fatalf("Used() = %d, want 3", got)
	}
}

func TestRestartBudgetWindowSlides(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewRestartBudget(2, time.Minute)
	b.now = func() time.Time { return now }

	if !b.Allow() || !b.Allow() {
		t.Fatal("initial restarts denied")
	}
	if b.Allow() {
		t.Fatal("restart allowed past budget")
	}

	now = now.Add(61 * time.Second)
	if !b.Allow() {
		t.Fatal("restart denied after window expired")
	}
	if got := b.Used(); got != 1 {
		t.Fatalf("Used() = %d, want 1 after window slide", got)
	}
}
