// Package adapter connects signal factories to external monitoring systems.
package adapter

import (
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/plugin-signal/pkg/signal"
)

// HealthAdapter publishes factory liveness and readiness on a healthcheck handler.
type HealthAdapter struct {
	handler healthcheck.Handler
}

// NewHealthAdapter returns an adapter backed by a fresh healthcheck handler.
func NewHealthAdapter() *HealthAdapter {
	return &HealthAdapter{handler: healthcheck.NewHandler()}
}

// Register adds the checks of f under name. When interval is positive the readiness
// check runs asynchronously on that interval instead of per request.
func (a *HealthAdapter) Register(name string, f *signal.Factory, interval time.Duration) {
	a.handler.AddLivenessCheck(fmt.Sprintf("%s-factory", name), f.LivenessCheck())
	ready := f.ReadinessCheck()
	if interval > 0 {
		ready = healthcheck.Async(ready, interval)
	}
	a.handler.AddReadinessCheck(fmt.Sprintf("%s-shm", name), ready)
}

// Handler serves /live and /ready.
func (a *HealthAdapter) Handler() http.Handler {
	return a.handler
}
