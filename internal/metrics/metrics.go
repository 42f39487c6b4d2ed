// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medremind",
			Name:      "dispatch_total",
			Help:      "Reminder notifications by timing and result.",
		},
		[]string{"timing", "result"},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medremind",
			Name:      "reminder_actions_total",
			Help:      "User responses to reminders.",
		},
		[]string{"action"},
	)

	PendingReminders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "medremind",
			Name:      "scheduler_pending_reminders",
			Help:      "Reminders currently armed in the scheduler.",
		},
	)

	VoiceUtterancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medremind",
			Name:      "voice_utterances_total",
			Help:      "Spoken utterances by priority and result.",
		},
		[]string{"priority", "result"},
	)

	SOSAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "medremind",
			Name:      "sos_alerts_total",
			Help:      "Emergency alerts triggered.",
		},
	)

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medremind",
			Name:      "label_scans_total",
			Help:      "Medicine label scans by outcome.",
		},
		[]string{"outcome"},
	)
)
