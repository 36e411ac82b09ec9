package webhook

// DefaultFailureCeiling is the consecutive-failure count at which a webhook
// stops receiving delivery attempts.
const DefaultFailureCeiling = 10

// CircuitBreaker decides webhook health from its consecutive-failure counter.
//
// A single success resets the counter to zero and there is no decay or
// half-open probe: once open, the circuit stays open until an operator resets
// the counter.
type CircuitBreaker struct {
	Ceiling int
}

func NewCircuitBreaker(ceiling int) CircuitBreaker {
	if ceiling <= 0 {
		ceiling = DefaultFailureCeiling
	}
	return CircuitBreaker{Ceiling: ceiling}
}

// Open reports whether deliveries must be skipped.
func (c CircuitBreaker) Open(failureCount int) bool {
	return failureCount >= c.Ceiling
}
