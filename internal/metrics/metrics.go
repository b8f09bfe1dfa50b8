// Package metrics holds the Prometheus collectors for provider traffic and
// inbox polling. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Poll results.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultDiscarded = "discarded"
)

// Metrics groups the collectors registered for one client instance.
type Metrics struct {
	ProviderRequests  *prometheus.CounterVec
	PollCycles        *prometheus.CounterVec
	PollSkipped       prometheus.Counter
	IdentitiesCreated prometheus.Counter
	InboxSize         prometheus.Gauge
}

// New registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the global registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ProviderRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyberguard_provider_requests_total",
				Help: "Requests sent to the mailbox provider.",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		PollCycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyberguard_poll_cycles_total",
				Help: "Inbox polling cycles by trigger and result.",
			},
			[]string{"trigger", "result"},
		),
		PollSkipped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cyberguard_poll_skipped_total",
				Help: "Scheduled ticks skipped because the previous fetch was still running.",
			},
		),
		IdentitiesCreated: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cyberguard_identities_created_total",
				Help: "Mailbox identities provisioned.",
			},
		),
		InboxSize: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cyberguard_inbox_messages",
				Help: "Messages in the most recently delivered inbox snapshot.",
			},
		),
	}
}

// ObserveRequest counts one provider request. status is 0 for transport
// failures.
func (m *Metrics) ObserveRequest(method, endpoint string, status int) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// ObservePoll counts one polling cycle.
func (m *Metrics) ObservePoll(trigger, result string) {
	if m == nil {
		return
	}
	m.PollCycles.WithLabelValues(trigger, result).Inc()
}

// ObserveSkip counts a skipped scheduled tick.
func (m *Metrics) ObserveSkip() {
	if m == nil {
		return
	}
	m.PollSkipped.Inc()
}

// ObserveIdentity counts a provisioned identity.
func (m *Metrics) ObserveIdentity() {
	if m == nil {
		return
	}
	m.IdentitiesCreated.Inc()
}

// SetInboxSize records the size of the latest delivered snapshot.
func (m *Metrics) SetInboxSize(n int) {
	if m == nil {
		return
	}
	m.InboxSize.Set(float64(n))
}
