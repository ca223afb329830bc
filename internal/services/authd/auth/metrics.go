package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var authOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_operations_total",
	Help: "Session operations by outcome.",
}, []string{"op", "result"})

type opMetric struct {
	op string
}

func (m opMetric) success() { authOps.WithLabelValues(m.op, "ok").Inc() }
func (m opMetric) failure() { authOps.WithLabelValues(m.op, "rejected").Inc() }

var (
	mSignUp   = opMetric{op: "signup"}
	mSignIn   = opMetric{op: "signin"}
	mSignOut  = opMetric{op: "signout"}
	mValidate = opMetric{op: "validate"}
	mRefresh  = opMetric{op: "refresh"}
)
