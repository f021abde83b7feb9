package robots

import (
	"time"

	"github.com/temoto/robotstxt"
)

// DecisionReason records why Decide returned what it did, for
// metadata.MetadataSink attribution — never for control flow.
type DecisionReason string

const (
	ReasonNoRobotsFound  DecisionReason = "no_robots_found"
	ReasonGroupMatch     DecisionReason = "group_match"
	ReasonNoGroupDefault DecisionReason = "no_group_default_allow"
	ReasonParseFallback  DecisionReason = "parse_fallback_allow"
)

type Decision struct {
	Allowed bool
	Reason  DecisionReason
}

// ruleSet wraps a single host's parsed robots.txt, matched against one
// user agent. Precedence (exact user-agent group over wildcard) is
// resolved entirely inside robotstxt.RobotsData.FindGroup.
type ruleSet struct {
	host      string
	userAgent string
	data      *robotstxt.RobotsData
	group     *robotstxt.Group
	rawText   string
}

func newRuleSet(host, userAgent string, data *robotstxt.RobotsData, rawText string) *ruleSet {
	rs := &ruleSet{host: host, userAgent: userAgent, data: data, rawText: rawText}
	if data != nil {
		rs.group = data.FindGroup(userAgent)
	}
	return rs
}

// emptyRuleSet permits everything. Used whenever a host has no robots.txt,
// or robots.txt could not be fetched/parsed — absence of policy means
// full access by default.
func emptyRuleSet(host, userAgent string) *ruleSet {
	return &ruleSet{host: host, userAgent: userAgent}
}

func (r *ruleSet) Decide(path string) Decision {
	if r.group == nil {
		return Decision{Allowed: true, Reason: ReasonNoRobotsFound}
	}
	return Decision{Allowed: r.group.Test(path), Reason: ReasonGroupMatch}
}

func (r *ruleSet) CrawlDelay() time.Duration {
	if r.group == nil {
		return 0
	}
	return r.group.CrawlDelay
}
