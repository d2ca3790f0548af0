package dto

import "github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"

type CreateReportRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
	// Priority is optional; the reason's default is used when empty.
	Priority string `json:"priority,omitempty"`
}

type ReportFilter struct {
	Status      string `query:"status"`
	SubjectType string `query:"subject_type"`
	Priority    string `query:"priority"`
	Resolved    *bool  `query:"resolved"`
	Limit       int    `query:"limit"`
	Offset      int    `query:"offset"`
}

type AcceptReportRequest struct {
	ActionTaken   moderation.Action `json:"action_taken"`
	Note          string            `json:"note"`
	RemoveContent bool              `json:"remove_content"`
	BlockUser     bool              `json:"block_user"`
}

type DeclineReportRequest struct {
	Note string `json:"note"`
}

type SetPriorityRequest struct {
	Priority string `json:"priority"`
}

type BlockUserRequest struct {
	Reason string `json:"reason"`
}

type ListResponse struct {
	Data   interface{} `json:"data"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
