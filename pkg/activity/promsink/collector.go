// Package promsink exports store notifications and fired triggers as
// Prometheus metrics.
package promsink

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-datalayer/pkg/activity"
)

const namespace = "datalayer"

// Collector is an activity.Hook that records notification counts and the
// cart aggregates of every snapshot it receives.
type Collector struct {
	registry      *prometheus.Registry
	notifications *prometheus.CounterVec
	productCount  prometheus.Gauge
	subTotal      prometheus.Gauge
	triggers      *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors on registry.
func NewWithRegistry(registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry: registry,
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "notifications_total",
				Help:      "Change notifications emitted by the store, by kind.",
			},
			[]string{"kind"},
		),
		productCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "product_count",
				Help:      "Sum of line quantities in the most recent snapshot.",
			},
		),
		subTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "sub_total",
				Help:      "Cart subtotal in the most recent snapshot.",
			},
		),
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "triggers",
				Name:      "fired_total",
				Help:      "Custom events dispatched by the trigger engine.",
			},
			[]string{"event", "trigger"},
		),
	}
	registry.MustRegister(c.notifications, c.productCount, c.subTotal, c.triggers)
	return c
}

// Notify implements activity.Hook.
func (c *Collector) Notify(_ context.Context, event activity.Event) error {
	if !event.Kind.Valid() {
		return nil
	}
	c.notifications.WithLabelValues(string(event.Kind)).Inc()

	summary := activity.Summarize(event.Snapshot)
	if summary.HasCart {
		c.productCount.Set(summary.ProductCount)
		c.subTotal.Set(summary.SubTotal)
	}
	return nil
}

// ObserveTrigger counts one dispatched custom event.
func (c *Collector) ObserveTrigger(event, trigger string) {
	event = strings.TrimSpace(event)
	if event == "" {
		event = "unknown"
	}
	c.triggers.WithLabelValues(event, strings.ToLower(strings.TrimSpace(trigger))).Inc()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
