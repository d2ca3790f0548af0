// Package moderation holds the pure policy of the abuse engine: the closed
// enumerations persisted on reports, the reason to priority table, the
// escalation thresholds and the reviewer state machine. Nothing in here
// touches storage.
package moderation

// Values of these enumerations are persisted. Add new ones, never rename.

type SubjectType string

const (
	SubjectPost    SubjectType = "post"
	SubjectComment SubjectType = "comment"
	SubjectUser    SubjectType = "user"
	SubjectMessage SubjectType = "message"
)

func (t SubjectType) Valid() bool {
	switch t {
	case SubjectPost, SubjectComment, SubjectUser, SubjectMessage:
		return true
	}
	return false
}

// IsContent reports whether the subject carries a moderation status.
func (t SubjectType) IsContent() bool {
	return t == SubjectPost || t == SubjectComment
}

type Reason string

const (
	ReasonSpam              Reason = "spam"
	ReasonHarassment        Reason = "harassment"
	ReasonBullying          Reason = "bullying"
	ReasonHateSpeech        Reason = "hate_speech"
	ReasonViolence          Reason = "violence"
	ReasonNudity            Reason = "nudity"
	ReasonFalseInformation  Reason = "false_information"
	ReasonSelfHarm          Reason = "self_harm"
	ReasonThreats           Reason = "threats"
	ReasonChildExploitation Reason = "child_exploitation"
	ReasonTerrorism         Reason = "terrorism"
	ReasonScam              Reason = "scam"
	ReasonCopyright         Reason = "copyright"
	ReasonOther             Reason = "other"
)

// Valid reports whether r is a known reason. The priority table is the
// source of truth for the set.
func (r Reason) Valid() bool {
	_, ok := reasonPriority[r]
	return ok
}

// Reasons lists every known reason in a stable order.
func Reasons() []Reason {
	return []Reason{
		ReasonSpam, ReasonHarassment, ReasonBullying, ReasonHateSpeech,
		ReasonViolence, ReasonNudity, ReasonFalseInformation, ReasonSelfHarm,
		ReasonThreats, ReasonChildExploitation, ReasonTerrorism, ReasonScam,
		ReasonCopyright, ReasonOther,
	}
}

type Action string

const (
	ActionNone             Action = "none"
	ActionWarning          Action = "warning"
	ActionContentRemoved   Action = "content_removed"
	ActionAccountSuspended Action = "account_suspended"
	ActionAccountBanned    Action = "account_banned"
)

func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionWarning, ActionContentRemoved, ActionAccountSuspended, ActionAccountBanned:
		return true
	}
	return false
}

// ContentStatus is the moderation_status column of posts and comments.
type ContentStatus string

const (
	ContentApproved ContentStatus = "approved"
	ContentFlagged  ContentStatus = "flagged"
	ContentRemoved  ContentStatus = "removed"
)
