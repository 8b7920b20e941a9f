package types

import "errors"

var (
	ErrQuoteUnavailable      = errors.New("quote unavailable")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientRepayment = errors.New("insufficient repayment")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDispatchTimeout       = errors.New("dispatch timeout")
	ErrStaleOpportunity      = errors.New("stale opportunity")
	// ErrAbandoned marks a submitted transaction whose outcome was not
	// observed before shutdown. It may still be mined.
	ErrAbandoned = errors.New("abandoned")
)

var reasons = []struct {
	err  error
	name string
}{
	{ErrQuoteUnavailable, "QuoteUnavailable"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrInsufficientRepayment, "InsufficientRepayment"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrDispatchTimeout, "DispatchTimeout"},
	{ErrStaleOpportunity, "StaleOpportunity"},
	{ErrAbandoned, "Abandoned"},
}

// Reason returns the failure name recorded in the audit log for err.
// Errors outside the taxonomy are kept verbatim.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.name
		}
	}
	return err.Error()
}

// ErrorForReason maps a revert reason name back to its sentinel error.
func ErrorForReason(name string) error {
	for _, r := range reasons {
		if r.name == name {
			return r.err
		}
	}
	return nil
}
