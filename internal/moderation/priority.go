package moderation

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// reasonPriority is total over Reason. Every path that needs a tier for a
// reason goes through DefaultPriority.
var reasonPriority = map[Reason]Priority{
	ReasonSelfHarm:          PriorityCritical,
	ReasonThreats:           PriorityCritical,
	ReasonTerrorism:         PriorityCritical,
	ReasonChildExploitation: PriorityCritical,

	ReasonViolence:   PriorityHigh,
	ReasonHarassment: PriorityHigh,
	ReasonBullying:   PriorityHigh,
	ReasonHateSpeech: PriorityHigh,

	ReasonNudity:           PriorityMedium,
	ReasonFalseInformation: PriorityMedium,
	ReasonScam:             PriorityMedium,

	ReasonSpam:      PriorityLow,
	ReasonCopyright: PriorityLow,
	ReasonOther:     PriorityLow,
}

func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank orders priorities from 1 (low) to 4 (critical). Unknown values rank 0.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// DefaultPriority returns the tier of a reason, or low for unknown reasons.
func DefaultPriority(r Reason) Priority {
	if p, ok := reasonPriority[r]; ok {
		return p
	}
	return PriorityLow
}

// Classify resolves the priority of a new report. An explicit priority wins
// when it is a known value; an empty one falls back to the reason's tier.
func Classify(r Reason, explicit Priority) (Priority, bool) {
	if explicit == "" {
		return DefaultPriority(r), true
	}
	if !explicit.Valid() {
		return "", false
	}
	return explicit, true
}
