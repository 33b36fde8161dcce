package obs

import (
	"testing"
	"time"
)

func TestAlerterBudgetPerSource(t *testing.T) {
	a := NewAlerter(time.Hour, 2)

	if !a.Alert("role-cycle", "cycle detected", nil) {
		t.Fatal("first alert should pass")
	}
	if !a.Alert("role-cycle", "cycle detected", map[string]any{"role_id": "r-1"}) {
		t.Fatal("second alert should fit the burst")
	}
	if a.Alert("role-cycle", "cycle detected", nil) {
		t.Fatal("third alert should be suppressed")
	}

	// A different source carries its own budget.
	if !a.Alert("dangling-parent", "parent missing", nil) {
		t.Fatal("independent source was throttled")
	}
}

func TestAlerterZeroValueGuards(t *testing.T) {
	a := NewAlerter(0, 0)
	if a.interval != time.Minute {
		t.Fatalf("interval not defaulted: %v", a.interval)
	}
	if a.burst != 1 {
		t.Fatalf("burst not defaulted: %d", a.burst)
	}
	if !a.Alert("source", "msg", nil) {
		t.Fatal("first alert should pass")
	}
	if a.Alert("source", "msg", nil) {
		t.Fatal("budget of one should suppress the second alert")
	}
}
