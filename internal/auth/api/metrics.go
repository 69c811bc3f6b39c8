package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commons",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commons",
		Subsystem: "auth",
		Name:      "refreshes_total",
		Help:      "Refresh rotations by outcome.",
	}, []string{"outcome"})

	silentRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commons",
		Subsystem: "auth",
		Name:      "silent_refreshes_total",
		Help:      "Middleware-driven silent refreshes by outcome.",
	}, []string{"outcome"})
)

const (
	outcomeOK       = "ok"
	outcomeDenied   = "denied"
	outcomeReuse    = "reuse_detected"
	outcomeInternal = "error"
)
