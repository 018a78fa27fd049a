package metrics

import "time"

// SearchRecorder publishes search measurements to the prometheus collectors.
type SearchRecorder struct{}

func NewSearchRecorder() *SearchRecorder {
	return &SearchRecorder{}
}

func (SearchRecorder) RunStarted() {
	SearchRunsActive.Inc()
}

func (SearchRecorder) RunFinished(outcome string) {
	SearchRunsActive.Dec()
	SearchRunsTotal.WithLabelValues(outcome).Inc()
}

func (SearchRecorder) IterationCompleted() {
	SearchIterationsTotal.Inc()
}

func (SearchRecorder) StreamTick(outcome string) {
	StreamTicksTotal.WithLabelValues(outcome).Inc()
}

func (SearchRecorder) ObserveScore(score float64) {
	SimilarityScore.Observe(score)
}

func (SearchRecorder) ObserveCall(op string, d time.Duration) {
	GenerativeCallDuration.WithLabelValues(op).Observe(d.Seconds())
}
