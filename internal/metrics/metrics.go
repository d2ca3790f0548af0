// Package metrics declares the Prometheus series of the abuse engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ReportsFiled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_reports_filed_total",
	Help: "Number of reports accepted for triage",
}, []string{"subject_type", "priority"})

var ReportsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_reports_rejected_total",
	Help: "Number of report filings rejected before persisting",
}, []string{"kind"})

var Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_escalations_total",
	Help: "Escalation decisions that asked for a suspension, by rule and outcome",
}, []string{"rule", "outcome"})

var Enforcements = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_enforcements_total",
	Help: "Number of enforcement transactions by outcome",
}, []string{"source", "outcome"})

var ReviewTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_review_transitions_total",
	Help: "Number of reviewer transitions applied",
}, []string{"transition"})

var FanoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_fanout_failures_total",
	Help: "Number of notification or realtime steps that failed and were dropped",
}, []string{"step"})

var LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "realtime_live_sessions",
	Help: "Number of websocket sessions held by this node",
})

var ForcedDisconnects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "realtime_forced_disconnects_total",
	Help: "Number of sessions closed because the account was blocked",
})
