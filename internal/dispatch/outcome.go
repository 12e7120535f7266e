package dispatch

import "net/http"

// Outcome classifies a finished HTTP exchange.
type Outcome int

const (
	// OutcomeSuccess means the server applied the action.
	OutcomeSuccess Outcome = iota
	// OutcomeRetry means the failure is transient and the head should be retried.
	OutcomeRetry
	// OutcomeReject means the server refused the action for good.
	OutcomeReject
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Classify maps an HTTP status code to an outcome.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return OutcomeRetry
	case status >= 500:
		return OutcomeRetry
	case status >= 400:
		return OutcomeReject
	default:
		// 1xx and 3xx that survive the client's redirect handling.
		return OutcomeRetry
	}
}
