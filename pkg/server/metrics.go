package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// Metrics holds Prometheus metric descriptors for the chat system. It is
// the registry's chat.Observer and passes each broadcast on to next.
type Metrics struct {
	reg       *chat.Registry
	next      chat.Observer
	startTime time.Time
	registry  *prometheus.Registry

	channelsTotal   prometheus.Gauge
	channelMembers  prometheus.Gauge
	messagesTotal   *prometheus.CounterVec
	deliveriesTotal prometheus.Counter
	loadWarnings    prometheus.Counter
	uptimeSeconds   prometheus.Gauge
}

// NewMetrics creates the chat metrics on their own Prometheus registry.
// next may be nil.
func NewMetrics(next chat.Observer, startTime time.Time) *Metrics {
	m := &Metrics{
		next:      next,
		startTime: startTime,
		registry:  prometheus.NewRegistry(),
		channelsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushchat_channels_total",
			Help: "Number of channels in the registry.",
		}),
		channelMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushchat_channel_members",
			Help: "Channel memberships summed over all channels.",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mushchat_channel_messages_total",
			Help: "Messages broadcast since start, by whether the speaker was shown.",
		}, []string{"origin"}),
		deliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushchat_channel_deliveries_total",
			Help: "Per-recipient deliveries of channel messages since start.",
		}),
		loadWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mushchat_chatdb_load_warnings_total",
			Help: "Recoverable problems skipped while loading chat databases.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mushchat_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
	}

	m.registry.MustRegister(
		m.channelsTotal,
		m.channelMembers,
		m.messagesTotal,
		m.deliveriesTotal,
		m.loadWarnings,
		m.uptimeSeconds,
	)
	return m
}

// Attach sets the registry whose totals Update reports.
func (m *Metrics) Attach(reg *chat.Registry) { m.reg = reg }

// MessageBroadcast implements chat.Observer.
func (m *Metrics) MessageBroadcast(channel string, speaker gamedb.DBRef, text string, delivered int) {
	origin := "speaker"
	if speaker == gamedb.Nothing {
		origin = "spoofed"
	}
	m.messagesTotal.WithLabelValues(origin).Inc()
	m.deliveriesTotal.Add(float64(delivered))
	if m.next != nil {
		m.next.MessageBroadcast(channel, speaker, text, delivered)
	}
}

// LoadWarnings records recoverable load problems.
func (m *Metrics) LoadWarnings(n int) {
	if n > 0 {
		m.loadWarnings.Add(float64(n))
	}
}

// Update refreshes all gauge metrics from current registry state.
func (m *Metrics) Update() {
	if m.reg != nil {
		st := m.reg.Stats()
		m.channelsTotal.Set(float64(st.Channels))
		m.channelMembers.Set(float64(st.Members))
	}
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		h.ServeHTTP(w, r)
	})
}
