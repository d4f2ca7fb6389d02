package keel

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/indigo-web/keel/http"
	"github.com/indigo-web/keel/http/status"
)

// RateLimiter is a pre-dispatch customizer limiting request rates per remote
// host. Over-limit requests are answered with 429 without ever reaching the
// handler.
type RateLimiter struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	Rate     rate.Limit
	Burst    int
	// TTL controls how long an idle visitor entry survives cleanup.
	TTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter granting r tokens per second with the
// given burst per remote host.
func NewRateLimiter(r, burst int) *RateLimiter {
	limiter := &RateLimiter{
		visitors: make(map[string]*visitor),
		Rate:     rate.Limit(r),
		Burst:    burst,
		TTL:      3 * time.Minute,
	}
	go limiter.cleanupVisitors()

	return limiter
}

func (r *RateLimiter) Customize(request *http.Request, response *http.Response) error {
	if !r.visitorFor(remoteHost(request)).Allow() {
		response.
			Code(status.TooManyRequests).
			String(string(status.Text(status.TooManyRequests)))
		request.SetHandled(true)
	}

	return nil
}

func (r *RateLimiter) visitorFor(host string) *rate.Limiter {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	v, exists := r.visitors[host]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(r.Rate, r.Burst)}
		r.visitors[host] = v
	}

	v.lastSeen = time.Now()

	return v.limiter
}

func (r *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		r.mtx.Lock()
		for host, v := range r.visitors {
			if time.Since(v.lastSeen) > r.TTL {
				delete(r.visitors, host)
			}
		}
		r.mtx.Unlock()
	}
}

func remoteHost(request *http.Request) string {
	if request.Remote == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(request.Remote.String())
	if err != nil {
		return request.Remote.String()
	}

	return host
}
