package metrics

// Admission-control series
const (
	GuardRejectionsTotal       = "guard_rejections_total"
	RateLimitDecisionsTotal    = "rate_limit_decisions_total"
	RateLimitDegradationsTotal = "rate_limit_degradations_total"
)

// RecordGuardRejection counts a request refused by guard with the given
// error code.
func RecordGuardRejection(guard string, code string) {
	count(GuardRejectionsTotal, map[string]string{"guard": guard, "code": code})
}

// RecordRateLimitDecision counts a limiter decision by outcome (allowed,
// limited, fail_open, fail_closed).
func RecordRateLimitDecision(backend string, outcome string) {
	count(RateLimitDecisionsTotal, map[string]string{"backend": backend, "outcome": outcome})
}

// RecordRateLimitDegradation counts entries into backend cooldown.
func RecordRateLimitDegradation(backend string) {
	count(RateLimitDegradationsTotal, map[string]string{"backend": backend})
}
