package activation

import "errors"

// Every error here is retryable per order: nothing is recorded and the order
// is attempted again next cycle.
var (
	// ErrUnauthorized means the backend rejected the API key. It usually signals
	// misconfiguration and will keep failing until the key is fixed.
	ErrUnauthorized = errors.New("activation api rejected the api key")

	// ErrPlanRejected means the backend refused to mint a code for the plan.
	ErrPlanRejected = errors.New("activation api rejected the plan")

	// ErrUnavailable covers network failures, timeouts, 5xx and malformed responses.
	ErrUnavailable = errors.New("activation api unavailable")
)
