package obs

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Alerter rate-limits operator alerts per source. Corrupted configuration is
// discovered on the request path, so without limiting, one bad role chain
// would emit an alert line per authorization check.
type Alerter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	burst    int
}

// NewAlerter allows one alert per interval per source, with the given burst.
func NewAlerter(interval time.Duration, burst int) *Alerter {
	if interval <= 0 {
		interval = time.Minute
	}
	if burst < 1 {
		burst = 1
	}
	return &Alerter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
		burst:    burst,
	}
}

// Alert emits one alert line for source unless the source's budget is spent.
// It reports whether the alert was written.
func (a *Alerter) Alert(source, msg string, fields map[string]any) bool {
	a.mu.Lock()
	lim, ok := a.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Every(a.interval), a.burst)
		a.limiters[source] = lim
	}
	a.mu.Unlock()

	if !lim.Allow() {
		return false
	}
	entry := map[string]any{
		"level":   "error",
		"alert":   true,
		"source":  source,
		"message": msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	LogEvent(entry)
	return true
}
