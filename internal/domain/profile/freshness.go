package profile

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// tokenSource hands out strictly increasing freshness tokens based on the clock.
type tokenSource struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func newTokenSource(now func() time.Time) *tokenSource {
	if now == nil {
		now = time.Now
	}
	return &tokenSource{now: now}
}

func (t *tokenSource) next() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.now().UnixNano()
	if v <= t.last {
		v = t.last + 1
	}
	t.last = v
	return v
}

// withFreshness appends param=token to raw untouched, so the result always starts with
// raw. A raw that already has a query gets "&", anything else "?".
func withFreshness(raw, param string, token int64) string {
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + param + "=" + strconv.FormatInt(token, 10)
}
