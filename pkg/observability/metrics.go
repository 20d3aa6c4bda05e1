package observability

import (
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "proxyshape"

// Metrics holds the collectors fed by proxy lifecycle events.
type Metrics struct {
	NodesCreated   *prometheus.CounterVec
	NodesDestroyed *prometheus.CounterVec
	LiveNodes      *prometheus.GaugeVec
	SelectionOps   *prometheus.CounterVec
	Commands       *prometheus.CounterVec
}

// Option configures Metrics.
type Option func(*config)

type config struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the collectors with r instead of the default registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = r
	}
}

// NewMetrics creates and registers the collectors.
func NewMetrics(opts ...Option) (*Metrics, error) {
	cfg := &config{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &Metrics{
		NodesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "shadow_nodes_created_total",
			Help:      "Shadow nodes created or restored in the host graph.",
		}, []string{"proxy_id", "kind"}),
		NodesDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "shadow_nodes_destroyed_total",
			Help:      "Shadow nodes removed from the host graph.",
		}, []string{"proxy_id"}),
		LiveNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "shadow_nodes_live",
			Help:      "Shadow nodes currently alive.",
		}, []string{"proxy_id"}),
		SelectionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "selection_changes_total",
			Help:      "Committed selection changes.",
		}, []string{"proxy_id", "mode", "internal"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "undo_commands_total",
			Help:      "Undo and redo operations.",
		}, []string{"proxy_id", "type"}),
	}

	for _, c := range []prometheus.Collector{m.NodesCreated, m.NodesDestroyed, m.LiveNodes, m.SelectionOps, m.Commands} {
		if err := cfg.registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeCreated: func(e *domain.NodeEvent) {
			m.NodesCreated.WithLabelValues(e.ProxyID, string(e.Kind)).Inc()
			m.LiveNodes.WithLabelValues(e.ProxyID).Inc()
		},
		OnNodeDestroyed: func(e *domain.NodeEvent) {
			m.NodesDestroyed.WithLabelValues(e.ProxyID).Inc()
			m.LiveNodes.WithLabelValues(e.ProxyID).Dec()
		},
		OnSelectionChanged: func(e *domain.SelectionEvent) {
			internal := "false"
			if e.Internal {
				internal = "true"
			}
			m.SelectionOps.WithLabelValues(e.ProxyID, e.Mode.String(), internal).Inc()
		},
		OnCommand: func(e *domain.CommandEvent) {
			m.Commands.WithLabelValues(e.ProxyID, string(e.Type)).Inc()
		},
	}
}
