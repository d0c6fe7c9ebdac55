package scan

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sortit/sortit-services/scan-service/internal/classify"
)

// otherBin labels bins outside the canonical set.
const otherBin = "other"

// Metrics holds the domain counters. A nil *Metrics records nothing.
type Metrics struct {
	scans       *prometheus.CounterVec
	predictions *prometheus.CounterVec
	fallbacks   prometheus.Counter
	saveFails   prometheus.Counter
	challenges  prometheus.Counter
}

// NewMetrics registers the scan counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sortit_scans_total",
			Help: "Completed scans by canonical bin category.",
		}, []string{"bin"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sortit_predictions_total",
			Help: "Scan predictions by outcome.",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sortit_classification_fallbacks_total",
			Help: "Classifications replaced by the fallback result.",
		}),
		saveFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sortit_progress_save_failures_total",
			Help: "Progress documents that could not be persisted.",
		}),
		challenges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sortit_daily_challenges_completed_total",
			Help: "Daily challenges completed.",
		}),
	}
	reg.MustRegister(m.scans, m.predictions, m.fallbacks, m.saveFails, m.challenges)
	return m
}

// ObserveFallback counts a fallback classification; it matches classify.FallbackHook.
func (m *Metrics) ObserveFallback(error) {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) observeScan(bin string, predictionMade, correct, challengeCompleted bool) {
	if m == nil {
		return
	}
	label := classify.CanonicalBin(bin)
	if label == "" {
		label = otherBin
	}
	m.scans.WithLabelValues(label).Inc()
	outcome := "none"
	if predictionMade {
		outcome = "incorrect"
		if correct {
			outcome = "correct"
		}
	}
	m.predictions.WithLabelValues(outcome).Inc()
	if challengeCompleted {
		m.challenges.Inc()
	}
}

func (m *Metrics) observeSaveFailure() {
	if m == nil {
		return
	}
	m.saveFails.Inc()
}
