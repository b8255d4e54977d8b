package session

import (
	"github.com/dodocare/dodocare/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = metrics.Namespace

var (
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "login_attempts_total",
			Help:      "Login attempts by method and result",
		},
		[]string{"method", "result"},
	)

	roleLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "role_lookups_total",
			Help:      "Profile role lookups by outcome",
		},
		[]string{"outcome"},
	)

	activeSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live sessions by role",
		},
		[]string{"role"},
	)

	sessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reaped_total",
			Help:      "Sessions closed after being idle",
		},
	)
)
