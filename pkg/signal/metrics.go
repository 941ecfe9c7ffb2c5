/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package signal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "plugin_signal"

const (
	kindLocal        = "local"
	kindCrossProcess = "cross_process"
	kindRelay        = "relay"

	resultOK        = "ok"
	resultError     = "error"
	resultTimeout   = "timeout"
	resultCancelled = "cancelled"
	resultClosed    = "closed"
)

// Metrics holds the Prometheus collectors shared by every signal of a Factory.
type Metrics struct {
	sends           *prometheus.CounterVec
	receives        *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec
	relayWakes      prometheus.Counter
	relayDeliveries prometheus.Counter
	duplicateWakes  prometheus.Counter
	readErrors      prometheus.Counter
	activeRelays    prometheus.Gauge
	payloadBytes    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sends_total",
			Help:      "Values sent, by signal kind and result.",
		}, []string{"kind", "result"}),
		receives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "receives_total",
			Help:      "Receive calls that returned, by signal kind and result.",
		}, []string{"kind", "result"}),
		subscribers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscribers",
			Help:      "Registered subscribers, by signal kind.",
		}, []string{"kind"}),
		relayWakes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "relay_wakes_total",
			Help:      "Event wakes observed by relay loops.",
		}),
		relayDeliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "relay_deliveries_total",
			Help:      "Values republished by relay loops into local signals.",
		}),
		duplicateWakes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "relay_duplicate_wakes_total",
			Help:      "Relay wakes whose segment sequence was already delivered.",
		}),
		readErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "read_errors_total",
			Help:      "Segment reads or decodes that failed in a relay loop.",
		}),
		activeRelays: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_relays",
			Help:      "Relay loops currently running.",
		}),
		payloadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "payload_bytes",
			Help:      "Serialized payload size written to shared memory.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
		}),
	}
}

func (m *Metrics) send(kind, result string) {
	m.sends.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) receive(kind, result string) {
	m.receives.WithLabelValues(kind, result).Inc()
}
