package queue

import (
	"sync"
)

// Priority bands: lower numbers dequeue first.
const (
	PrioritySeed            = 15
	PrioritySitemapOrLinked = 20
	PriorityDemotedBase     = 21
	maxLoadDemotion         = 5
)

// planDiscount ranks tenant plans by entitlement: higher-ranked plans
// subtract more from a job's priority number, so they never dequeue
// worse than a lower plan sharing the same basePriority. Plan/billing
// lookup itself is out of scope — Resolve only consumes the resolved
// plan string its caller hands it. An unrecognized or empty plan gets
// no discount.
var planDiscount = map[string]int{
	"growth":     1,
	"enterprise": 2,
}

// PriorityPolicy maps a (plan, tenant load) pair onto a priority band.
// Bookkeeping is a mutex-guarded per-tenant counter with a pure resolve
// function, the same shape as pkg/limiter's ConcurrentRateLimiter applied
// to tenant load instead of host timing.
type PriorityPolicy struct {
	mu            sync.Mutex
	tenantLoad    map[string]int
	loadThreshold int
}

func NewPriorityPolicy(loadThreshold int) *PriorityPolicy {
	if loadThreshold <= 0 {
		loadThreshold = 50
	}
	return &PriorityPolicy{
		tenantLoad:    make(map[string]int),
		loadThreshold: loadThreshold,
	}
}

func (p *PriorityPolicy) IncrementLoad(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenantLoad[tenantID]++
}

func (p *PriorityPolicy) DecrementLoad(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tenantLoad[tenantID] > 0 {
		p.tenantLoad[tenantID]--
	}
}

// Resolve returns the priority band for a job at basePriority for
// (plan, tenantID). Plans never regress below a lower plan's band for the
// same base; a tenant whose in-flight load exceeds loadThreshold is
// demoted by a bounded amount, capped at maxLoadDemotion, so no single
// tenant can starve others by flooding the queue.
func (p *PriorityPolicy) Resolve(basePriority int, plan string, tenantID string) int {
	p.mu.Lock()
	load := p.tenantLoad[tenantID]
	p.mu.Unlock()

	priority := basePriority - planDiscount[plan]

	if load <= p.loadThreshold {
		return priority
	}

	over := load - p.loadThreshold
	demotion := over
	if demotion > maxLoadDemotion {
		demotion = maxLoadDemotion
	}
	return priority + demotion
}
