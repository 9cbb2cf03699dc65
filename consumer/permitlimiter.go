// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// permitLimiterRate and permitLimiterBurst bound how many flow-control
// permits messageProcessed sends to a single child per second. A batch
// drain via popIf can otherwise replenish dozens of permits in the same
// instant; the limiter smooths that into the child's own pace by
// deferring the excess rather than dropping it, since every permit
// messageProcessed would otherwise have sent still needs to arrive for
// the child's flow-control accounting to stay correct.
const (
	permitLimiterRate  = 500
	permitLimiterBurst = 50
)

// permitLimiter smooths flow-control permit bursts on a per-partition
// basis. One limiter is lazily created per partition name the first
// time a permit is replenished for it, and removed when the owning
// child is torn down.
type permitLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPermitLimiter() *permitLimiter {
	return &permitLimiter{limiters: make(map[string]*rate.Limiter)}
}

// replenish runs fn now if partitionName's budget allows it, or defers
// it to fire once the token bucket would have admitted it. Reserve
// never denies a single token outright (permitLimiterBurst bounds only
// how many reservations can run ahead of the bucket, not whether one is
// granted), so fn always runs exactly once.
func (p *permitLimiter) replenish(partitionName string, fn func()) {
	p.mu.Lock()
	l, ok := p.limiters[partitionName]
	if !ok {
		l = rate.NewLimiter(permitLimiterRate, permitLimiterBurst)
		p.limiters[partitionName] = l
	}
	p.mu.Unlock()

	delay := l.Reserve().Delay()
	if delay <= 0 {
		fn()
		return
	}
	time.AfterFunc(delay, fn)
}

// remove drops partitionName's limiter once its child is gone.
func (p *permitLimiter) remove(partitionName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.limiters, partitionName)
}
