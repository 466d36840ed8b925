/*
Copyright (c) The Notification Proxy Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package stats exposes prometheus counters and gauges for the host
// emitter: how many notifications were forwarded vs rejected by the
// sanitizers, and how large the ID mapping / parking table have grown.
package stats

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter holds the registry and the notification-proxy
// specific collectors registered against it.
type PrometheusExporter struct {
	registry *prometheus.Registry

	Forwarded prometheus.Counter
	Rejected  *prometheus.CounterVec
	Events    *prometheus.CounterVec

	MappingSize     prometheus.Gauge
	OutstandingReqs prometheus.Gauge

	listenAddr string
}

// NewPrometheusExporter creates the exporter and registers every
// collector. listenAddr is the host:port /metrics is served from.
func NewPrometheusExporter(listenAddr string) *PrometheusExporter {
	e := &PrometheusExporter{
		registry:   prometheus.NewRegistry(),
		listenAddr: listenAddr,

		Forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_proxy_forwarded_total",
			Help: "Notifications successfully forwarded to the real daemon.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_proxy_rejected_total",
			Help: "Notifications rejected by a sanitizer, labeled by reason.",
		}, []string{"reason"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_proxy_events_total",
			Help: "Asynchronous events forwarded to the guest, labeled by kind.",
		}, []string{"kind"}),

		MappingSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_proxy_id_mapping_size",
			Help: "Number of live host/guest ID mappings.",
		}),
		OutstandingReqs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_proxy_outstanding_requests",
			Help: "Number of guest requests parked awaiting a host reply.",
		}),
	}

	e.registry.MustRegister(e.Forwarded, e.Rejected, e.Events, e.MappingSize, e.OutstandingReqs)
	return e
}

// Start serves /metrics until the process exits. It never returns.
func (e *PrometheusExporter) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	log.Fatal(http.ListenAndServe(e.listenAddr, mux))
}

// RejectReason labels are kept short and stable since they become
// prometheus label values.
const (
	ReasonInvalidReplacesID = "invalid_replaces_id"
	ReasonExpireTimeout     = "expire_timeout"
	ReasonActions           = "actions"
	ReasonCategory          = "category"
	ReasonImage             = "image"
	ReasonHostError         = "host_error"
)

// EventClosed and EventActionInvoked label the Events counter.
const (
	EventClosed         = "notification_closed"
	EventActionInvoked  = "action_invoked"
	EventServerRestart  = "server_restart"
)

func (e *PrometheusExporter) String() string {
	return fmt.Sprintf("stats exporter on %s", e.listenAddr)
}
