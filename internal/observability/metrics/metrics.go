// Package metrics exposes reconciliation health signals.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/payline/internal/config"
)

const (
	WebhookResultProcessed = "processed"
	WebhookResultDuplicate = "duplicate"
	WebhookResultRejected  = "rejected"
	WebhookResultFailed    = "failed"
)

// Metrics holds the counters for webhook ingestion, dunning and
// notification delivery.
type Metrics struct {
	webhookEvents     *prometheus.CounterVec
	dunningDispatched *prometheus.CounterVec
	dunningSkipped    *prometheus.CounterVec
	notifications     *prometheus.CounterVec
}

func New(cfg config.Config) *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

func NewWithRegisterer(registerer prometheus.Registerer, cfg config.Config) *Metrics {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "payline"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payline_webhook_events_total",
			Help:        "Inbound gateway callbacks by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		dunningDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payline_dunning_dispatched_total",
			Help:        "Dunning notifications dispatched by stage.",
			ConstLabels: constLabels,
		}, []string{"stage"}),
		dunningSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payline_dunning_skipped_total",
			Help:        "Dunning candidates skipped because the stage was already notified.",
			ConstLabels: constLabels,
		}, []string{"stage"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payline_notifications_total",
			Help:        "Outbound notification attempts by channel and result.",
			ConstLabels: constLabels,
		}, []string{"channel", "result"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.webhookEvents,
			m.dunningDispatched,
			m.dunningSkipped,
			m.notifications,
		)
	}
	return m
}

func (m *Metrics) ObserveWebhook(result string) {
	m.webhookEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDunningDispatched(stage string) {
	m.dunningDispatched.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveDunningSkipped(stage string) {
	m.dunningSkipped.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveNotification(channel, result string) {
	m.notifications.WithLabelValues(channel, result).Inc()
}
