// Package metrics exposes Prometheus metrics for the serial link, the display
// state and the HTTP bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/protocol"
)

const namespace = "rotelhex"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics holds the application metrics. It satisfies rotel.Recorder and
// display.Observer.
type Metrics struct {
	FramesReceived   *prometheus.CounterVec // labels: checksum=ok|bad
	FramesDropped    *prometheus.CounterVec // labels: reason
	CommandsSent     *prometheus.CounterVec // labels: command
	ChannelReopens   prometheus.Counter
	DisplayUpdates   prometheus.Counter
	PowerState       *prometheus.GaugeVec // labels: state; 1 for the current state
	WebSocketClients prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec // labels: route, status
}

// New registers and returns the application metrics
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received from the receiver.",
		}, []string{"checksum"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Malformed frames dropped while resynchronising.",
		}, []string{"reason"}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Commands written to the receiver.",
		}, []string{"command"}),
		ChannelReopens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_reopens_total",
			Help:      "Times the serial channel was reopened after being lost.",
		}),
		DisplayUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_updates_total",
			Help:      "Display updates that changed what the panel shows.",
		}),
		PowerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_state",
			Help:      "Inferred power state (1 for the current state).",
		}, []string{"state"}),
		WebSocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket display subscribers.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status.",
		}, []string{"route", "status"}),
	}
	reg.MustRegister(
		m.FramesReceived, m.FramesDropped, m.CommandsSent, m.ChannelReopens,
		m.DisplayUpdates, m.PowerState, m.WebSocketClients, m.HTTPRequests,
	)
	m.setPower(display.PowerUnknown)
	return m
}

// FrameReceived counts a decoded frame
func (m *Metrics) FrameReceived(resp *protocol.Response) {
	result := "ok"
	if resp.BadChecksum {
		result = "bad"
	}
	m.FramesReceived.WithLabelValues(result).Inc()
}

// FrameDropped counts a dropped frame
func (m *Metrics) FrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// CommandSent counts a command
func (m *Metrics) CommandSent(name string) {
	m.CommandsSent.WithLabelValues(name).Inc()
}

// ChannelReopened counts a reopen
func (m *Metrics) ChannelReopened() {
	m.ChannelReopens.Inc()
}

// Notify tracks display changes and the power state
func (m *Metrics) Notify(u display.Update) {
	if !u.Changed() {
		return
	}
	m.DisplayUpdates.Inc()
	if u.PowerState != u.PrevPowerState {
		m.setPower(u.PowerState)
	}
}

func (m *Metrics) setPower(state display.PowerState) {
	for _, s := range []display.PowerState{display.PowerUnknown, display.PowerOn, display.PowerStandby} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.PowerState.WithLabelValues(s.String()).Set(v)
	}
}
