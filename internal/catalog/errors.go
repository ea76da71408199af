package catalog

import "errors"

// Failure classes of a single catalog request. Gateway operations collapse
// all of them into empty results; the tool layer uses them to pick a hint.
var (
	ErrNotFound        = errors.New("catalog: not found")
	ErrForbidden       = errors.New("catalog: access denied")
	ErrUnavailable     = errors.New("catalog: unavailable")
	ErrBudgetExhausted = errors.New("catalog: call budget exhausted")
	ErrMissingUserID   = errors.New("catalog: a numeric user id is required for token exchange")
	ErrUnvalidated     = errors.New("catalog: credentials not validated")
)

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrBudgetExhausted):
		return "budget_exhausted"
	default:
		return "unavailable"
	}
}
