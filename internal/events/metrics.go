package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
)

const namespace = "graylogic_fx"

// InstanceSource reports the live instances.
type InstanceSource interface {
	Instances() []effect.InstanceInfo
}

// PromCollector exports registry gauges and per-kind event counters.
type PromCollector struct {
	events *prometheus.CounterVec
}

// NewPromCollector registers the metrics with reg. Gauges are computed from
// src at scrape time; bus may be nil.
func NewPromCollector(reg prometheus.Registerer, src InstanceSource, bus *Bus) *PromCollector {
	factory := promauto.With(reg)

	c := &PromCollector{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effect_events_total",
			Help:      "Device effect lifecycle events by kind.",
		}, []string{"kind"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "effect_instances",
		Help:      "Live device effect instances.",
	}, func() float64 {
		return float64(len(src.Instances()))
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "effect_handles",
		Help:      "Client handles attached to device effect instances.",
	}, func() float64 {
		n := 0
		for _, info := range src.Instances() {
			n += len(info.Handles)
		}
		return float64(n)
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "effect_instances_pinned",
		Help:      "Device effect instances kept alive by a patch binding.",
	}, func() float64 {
		n := 0
		for _, info := range src.Instances() {
			if info.Pinned {
				n++
			}
		}
		return float64(n)
	})

	if bus != nil {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_bus_dropped_total",
			Help:      "Effect events dropped because the bus queue was full.",
		}, func() float64 {
			return float64(bus.Dropped())
		})
	}

	return c
}

// OnEffectEvent implements effect.Observer.
func (c *PromCollector) OnEffectEvent(ev effect.Event) {
	c.events.WithLabelValues(string(ev.Kind)).Inc()
}
