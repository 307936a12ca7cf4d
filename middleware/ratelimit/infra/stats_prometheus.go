package infra

import (
	"context"

	"marketplace-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusStats conta decisões por política. Propositalmente não usa a chave
// como label (cardinalidade).
type PrometheusStats struct {
	decisions *prometheus.CounterVec
}

// NewPrometheusStats registra as métricas em reg (nil = registry padrão).
func NewPrometheusStats(reg prometheus.Registerer) *PrometheusStats {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusStats{
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "marketplace",
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Rate limit decisions by policy prefix and result",
			},
			[]string{"policy", "result"},
		),
	}
}

func (p *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	p.decisions.WithLabelValues(ev.Prefix, resultField(ev.Allowed)).Inc()
	return nil
}

// FanoutStats repassa o evento para todos os stores; devolve o primeiro erro.
type FanoutStats []domain.StatsStore

func (f FanoutStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
