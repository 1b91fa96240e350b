package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsLogged counts security events appended to the audit trail, by type and outcome.
	EventsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_security_events_total",
		Help: "Total number of security events appended to the audit trail.",
	}, []string{"type", "outcome"})

	// PermissionDenials counts denied permission checks.
	PermissionDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_permission_denials_total",
		Help: "Total number of denied permission checks.",
	})

	// ViolationsDetected counts detected violations by severity.
	ViolationsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_violations_total",
		Help: "Total number of security violations detected.",
	}, []string{"severity"})

	// KeyRotations counts encryption key rotations.
	KeyRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_key_rotations_total",
		Help: "Total number of encryption key rotations.",
	})

	// EventsSweptByRetention counts events discarded by the retention sweep.
	EventsSweptByRetention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_events_swept_total",
		Help: "Total number of audit events discarded by the retention sweep.",
	})

	// ComplianceScore records the score of the most recent compliance run.
	ComplianceScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_compliance_score",
		Help: "Score of the most recent compliance check run (0-100).",
	})
)
