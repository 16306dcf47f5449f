package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the MeshCom gateway
type Metrics struct {
	// UDP receive path
	PacketsReceived  prometheus.Counter
	MessagesAccepted prometheus.Counter
	PacketsDiscarded *prometheus.CounterVec

	// Send path
	MessagesSent      prometheus.Counter
	SendErrors        *prometheus.CounterVec
	MessagesTruncated prometheus.Counter

	// Listeners and publishers
	Listeners            prometheus.Gauge
	NotificationsDropped prometheus.Counter
	PublishErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PacketsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "meshcom_packets_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		MessagesAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: "meshcom_messages_accepted_total",
			Help: "Total number of messages admitted and normalized",
		}),
		PacketsDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcom_packets_discarded_total",
			Help: "Total number of datagrams discarded, by reason",
		}, []string{"reason"}),

		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "meshcom_messages_sent_total",
			Help: "Total number of outbound messages written to the socket",
		}),
		SendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcom_send_errors_total",
			Help: "Total number of failed send requests, by kind",
		}, []string{"kind"}),
		MessagesTruncated: f.NewCounter(prometheus.CounterOpts{
			Name: "meshcom_messages_truncated_total",
			Help: "Total number of outbound messages truncated to the frame limit",
		}),

		Listeners: f.NewGauge(prometheus.GaugeOpts{
			Name: "meshcom_listeners",
			Help: "Current number of registered message listeners",
		}),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "meshcom_notifications_dropped_total",
			Help: "Total number of listener notifications dropped because the listener queue was full",
		}),
		PublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meshcom_publish_errors_total",
			Help: "Total number of event publication failures, by publisher",
		}, []string{"publisher"}),
	}
}
