package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes the hub's operational metrics. A nil *Collector is
// valid and records nothing, so callers never have to guard metric calls.
type Collector struct {
	participantsConnected prometheus.Gauge
	roomsActive           prometheus.Gauge
	joinsTotal            prometheus.Counter
	leavesTotal           prometheus.Counter
	messagesTotal         *prometheus.CounterVec
	relaysDroppedTotal    prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		participantsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_participants_connected",
			Help: "Number of currently connected participants",
		}),

		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomlink_rooms_active",
			Help: "Number of rooms with at least one member",
		}),

		joinsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_joins_total",
			Help: "Total number of processed room joins",
		}),

		leavesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_leaves_total",
			Help: "Total number of processed room leaves",
		}),

		messagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomlink_signal_messages_total",
			Help: "Signaling messages handled, by action",
		}, []string{"action"}),

		relaysDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomlink_relays_dropped_total",
			Help: "Relayed payloads dropped because the target was not connected",
		}),
	}
}

func (c *Collector) RecordParticipantConnected() {
	if c == nil {
		return
	}
	c.participantsConnected.Inc()
}

func (c *Collector) RecordParticipantDisconnected() {
	if c == nil {
		return
	}
	c.participantsConnected.Dec()
}

func (c *Collector) RecordJoin() {
	if c == nil {
		return
	}
	c.joinsTotal.Inc()
}

func (c *Collector) RecordLeave() {
	if c == nil {
		return
	}
	c.leavesTotal.Inc()
}

func (c *Collector) RecordMessage(action string) {
	if c == nil {
		return
	}
	c.messagesTotal.WithLabelValues(action).Inc()
}

func (c *Collector) RecordRelayDropped() {
	if c == nil {
		return
	}
	c.relaysDroppedTotal.Inc()
}

func (c *Collector) SetActiveRooms(n int) {
	if c == nil {
		return
	}
	c.roomsActive.Set(float64(n))
}
