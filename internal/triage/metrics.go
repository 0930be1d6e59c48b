package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the intake pipeline.
type Metrics struct {
	TicketsTotal        *prometheus.CounterVec
	TriageDuration      *prometheus.HistogramVec
	ClassifierCalls     *prometheus.CounterVec
	ClassifierDuration  *prometheus.HistogramVec
	FallbacksTotal      prometheus.Counter
	SpamTotal           *prometheus.CounterVec
	DuplicatesLinked    prometheus.Counter
	DuplicateDrops      prometheus.Counter
	ReroutesTotal       *prometheus.CounterVec
	NotifyFailures      prometheus.Counter
	LLMTokensIn         prometheus.Counter
	LLMTokensOut        prometheus.Counter
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_tickets_total",
			Help: "Tickets created by derived status.",
		}, []string{"status"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_triage_duration_seconds",
			Help:    "End-to-end triage duration per message.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}, []string{"status"}),
		ClassifierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_classifier_calls_total",
			Help: "Classifier provider calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		ClassifierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_classifier_call_duration_seconds",
			Help:    "Duration of individual classifier provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}, []string{"op"}),
		FallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_classifier_fallbacks_total",
			Help: "Triage runs that substituted the deterministic fallback.",
		}),
		SpamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_spam_total",
			Help: "Spam tickets by reason.",
		}, []string{"reason"}),
		DuplicatesLinked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_duplicates_linked_total",
			Help: "Tickets linked as followers of an open primary incident.",
		}),
		DuplicateDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_duplicate_claims_dropped_total",
			Help: "Duplicate claims dropped because the parent was not in the active set.",
		}),
		ReroutesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_department_validations_total",
			Help: "Department revalidation verdicts by action.",
		}, []string{"action"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_notify_failures_total",
			Help: "Ticket event publishes that failed.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
	}

	reg.MustRegister(
		m.TicketsTotal,
		m.TriageDuration,
		m.ClassifierCalls,
		m.ClassifierDuration,
		m.FallbacksTotal,
		m.SpamTotal,
		m.DuplicatesLinked,
		m.DuplicateDrops,
		m.ReroutesTotal,
		m.NotifyFailures,
		m.LLMTokensIn,
		m.LLMTokensOut,
	)

	return m
}

// Hooks returns GatewayHooks that feed the classifier call metrics.
func (m *Metrics) Hooks() GatewayHooks {
	return GatewayHooks{
		OnCall: func(op string, usage Usage, duration float64, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.ClassifierCalls.WithLabelValues(op, outcome).Inc()
			m.ClassifierDuration.WithLabelValues(op).Observe(duration)
			m.LLMTokensIn.Add(float64(usage.InputTokens))
			m.LLMTokensOut.Add(float64(usage.OutputTokens))
		},
	}
}
