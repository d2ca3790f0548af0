package moderation

import "time"

// Decision is the outcome of evaluating a user's pending report volume.
type Decision struct {
	Suspend  bool
	Duration time.Duration
	Rule     string
}

type escalationRule struct {
	name       string
	tier       Priority // empty matches any reason
	minPending int64
	duration   time.Duration
}

// Ordered, first match wins.
var escalationRules = []escalationRule{
	{name: "critical", tier: PriorityCritical, minPending: 2, duration: 7 * 24 * time.Hour},
	{name: "high", tier: PriorityHigh, minPending: 3, duration: 3 * 24 * time.Hour},
	{name: "volume", minPending: 5, duration: 24 * time.Hour},
}

// Evaluate maps the reason of the report just filed and the number of
// pending reports against the user (that report included) to a decision.
// The tier comes from the reason table, never from a client-supplied
// priority.
func Evaluate(r Reason, pending int64) Decision {
	tier := DefaultPriority(r)
	for _, rule := range escalationRules {
		if rule.tier != "" && rule.tier != tier {
			continue
		}
		if pending >= rule.minPending {
			return Decision{Suspend: true, Duration: rule.duration, Rule: rule.name}
		}
	}
	return Decision{}
}
