package sim

import "fieldgate.dev/internal/access"

// Tally accumulates decision outcomes across a simulation run.
type Tally struct {
	Checks  int
	Allowed int
	Denied  map[access.Reason]int
	Errors  int
}

func (t *Tally) Add(d access.Decision, err error) {
	t.Checks++
	switch {
	case err != nil:
		t.Errors++
	case d.Allowed:
		t.Allowed++
	default:
		if t.Denied == nil {
			t.Denied = make(map[access.Reason]int)
		}
		t.Denied[d.Reason]++
	}
}

func (t Tally) DeniedTotal() int {
	total := 0
	for _, n := range t.Denied {
		total += n
	}
	return total
}

func (t Tally) DenyRate() float64 {
	if t.Checks == 0 {
		return 0
	}
	return float64(t.DeniedTotal()) / float64(t.Checks)
}
