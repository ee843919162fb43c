package event

// Metric names a per-user leaderboard dimension.
type Metric string

const (
	// MetricParticipation counts records a user took part in.
	MetricParticipation Metric = "participation"
	// MetricInitiator counts records a user created.
	MetricInitiator Metric = "initiator"
	// MetricWin counts decided-won records a user took part in.
	MetricWin Metric = "win"
	// MetricLoss counts decided-lost records a user took part in.
	MetricLoss Metric = "loss"
)

// Metrics lists every metric in stable order.
func Metrics() []Metric {
	return []Metric{MetricParticipation, MetricInitiator, MetricWin, MetricLoss}
}

// ValidMetric reports whether m is a known metric.
func ValidMetric(m Metric) bool {
	switch m {
	case MetricParticipation, MetricInitiator, MetricWin, MetricLoss:
		return true
	}
	return false
}

// MetricForOutcome returns the counter metric matching a fixed outcome,
// or false when the outcome carries no counter (None).
func MetricForOutcome(o Outcome) (Metric, bool) {
	switch o {
	case OutcomeWin:
		return MetricWin, true
	case OutcomeLoss:
		return MetricLoss, true
	default:
		return "", false
	}
}
