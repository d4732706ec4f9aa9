package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ==== Métricas ====

// metrics agrupa os contadores do processo num registry próprio.
type metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	cacheTotal     *prometheus.CounterVec
	mailTotal      *prometheus.CounterVec
	inconsistentes prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nfcancelados_conciliacoes_total",
			Help: "Conciliações executadas, por resultado.",
		}, []string{"resultado"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nfcancelados_conciliacao_segundos",
			Help:    "Duração da leitura e cruzamento das planilhas.",
			Buckets: prometheus.DefBuckets,
		}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nfcancelados_cache_total",
			Help: "Consultas ao cache de resultados, por desfecho.",
		}, []string{"desfecho"}),
		mailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nfcancelados_emails_total",
			Help: "Envios de e-mail, por resultado.",
		}, []string{"resultado"}),
		inconsistentes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nfcancelados_inconsistencias_ultima",
			Help: "Inconsistências detetadas na última conciliação.",
		}),
	}
	m.registry.MustRegister(m.runsTotal, m.runDuration, m.cacheTotal, m.mailTotal, m.inconsistentes)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
