package middleware

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/taskflowio/ltq/internal/domain"
)

// ParseRate parses a "N/unit" string (unit in {s, m, h}) into a rate in
// admissions per second.
func ParseRate(spec string) (float64, error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("middleware: invalid max_rate %q", spec)
	}
	n, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("middleware: invalid max_rate %q", spec)
	}
	var perSecond float64
	switch parts[1] {
	case "s":
		perSecond = n
	case "m":
		perSecond = n / 60
	case "h":
		perSecond = n / 3600
	default:
		return 0, fmt.Errorf("middleware: invalid max_rate unit %q", spec)
	}
	return perSecond, nil
}

// MaxRate enforces a minimum interval between successful entries for one
// task name. Unlike a hand-rolled last_admit timestamp, the bookkeeping is
// delegated to golang.org/x/time/rate with burst 1: on entry it reserves a
// token and, if the token isn't immediately available, cancels the
// reservation (so a message that will be retried never consumes a token
// meant for the message that actually gets to run) and raises Retry with a
// jittered delay derived from the reservation's wait time, spreading bursts
// out instead of admitting them all at once.
//
// A MaxRate instance is worker-local: the limit is per task-name per
// middleware instance, not a cluster-wide limit. One instance is shared by
// every concurrent goroutine processing that task, so Handle must only
// touch state safe for concurrent use.
type MaxRate struct {
	limiter *rate.Limiter
}

// NewMaxRate builds a MaxRate middleware from a "N/s"|"N/m"|"N/h" spec.
func NewMaxRate(spec string) (*MaxRate, error) {
	perSecond, err := ParseRate(spec)
	if err != nil {
		return nil, err
	}
	return &MaxRate{
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}, nil
}

func (mw *MaxRate) Handle(ctx context.Context, m *domain.Message, next Handler) error {
	now := time.Now()
	res := mw.limiter.ReserveN(now, 1)
	if !res.OK() {
		return domain.NewReject("rate limit misconfigured")
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		m.SetRateLimited(true)
		base := delay
		// rand.Float64 (top-level, not a *rand.Rand) is safe for concurrent
		// use, unlike a shared *rand.Rand — Handle runs on many goroutines
		// at once for the same task.
		jittered := time.Duration(float64(base)*0.5 + rand.Float64()*float64(base)*0.5)
		return domain.NewRetry(jittered, "rate limited")
	}
	return next(ctx, m)
}
