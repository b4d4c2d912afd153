package gateway

import (
	"net"
	"sync"
	"time"
)

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

// authLimiter counts failed console handshakes per remote host within a
// sliding window. Stale hosts are pruned on write.
type authLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newAuthLimiter() *authLimiter {
	return &authLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	return remoteAddr
}

// allow reports whether remoteAddr may attempt another handshake.
func (l *authLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	host := hostOf(remoteAddr)
	recent := l.recent(host)
	return len(recent) < authRateMaxFails
}

func (l *authLimiter) recordFailure(remoteAddr string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	host := hostOf(remoteAddr)
	if _, tracked := l.failures[host]; !tracked && len(l.failures) >= authRateMaxIPs {
		for h := range l.failures {
			l.recent(h)
		}
		if len(l.failures) >= authRateMaxIPs {
			l.evictOldest()
		}
	}
	l.failures[host] = append(l.recent(host), l.now())
}

// recent drops expired failures for host and returns the rest.
func (l *authLimiter) recent(host string) []time.Time {
	cutoff := l.now().Add(-authRateWindow)
	times := l.failures[host]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = kept
	return kept
}

func (l *authLimiter) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for h, times := range l.failures {
		if oldest == "" || times[0].Before(oldestAt) {
			oldest, oldestAt = h, times[0]
		}
	}
	delete(l.failures, oldest)
}
