package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authorization and retrieval outcomes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AuthorizationsStarted prometheus.Counter
	TokenExchanges        *prometheus.CounterVec
	DocumentFetches       *prometheus.CounterVec
	EducationRequests     *prometheus.CounterVec
	EducationDuration     prometheus.Histogram
}

// NewMetrics registers all collectors with reg. Use a fresh registry per
// server in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthorizationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "eduauthd_authorizations_started_total",
			Help: "Total number of authorization redirects issued",
		}),
		TokenExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eduauthd_token_exchanges_total",
			Help: "Authorization code exchanges by result",
		}, []string{"result"}),
		DocumentFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eduauthd_document_fetches_total",
			Help: "Document fetches by document identifier and result",
		}, []string{"document", "result"}),
		EducationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eduauthd_education_requests_total",
			Help: "Education profile requests by result",
		}, []string{"result"}),
		EducationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eduauthd_education_request_duration_seconds",
			Help:    "Duration of education profile assembly including upstream calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) IncAuthorizationStarted() {
	if m == nil {
		return
	}
	m.AuthorizationsStarted.Inc()
}

func (m *Metrics) IncTokenExchange(err error) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) IncDocumentFetch(document string, err error) {
	if m == nil {
		return
	}
	m.DocumentFetches.WithLabelValues(document, resultLabel(err)).Inc()
}

// ObserveEducation records one education request. Call with time.Now() at
// the start of the request.
func (m *Metrics) ObserveEducation(start time.Time, err error) {
	if m == nil {
		return
	}
	m.EducationRequests.WithLabelValues(resultLabel(err)).Inc()
	m.EducationDuration.Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
