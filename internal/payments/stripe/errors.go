package stripe

import (
	"context"
	"errors"
	"net"
	"net/http"

	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/stripe/stripe-go/v82"
)

// classify marks rate limits, connection failures and 5xx responses transient and missing
// resources not found. Everything else passes through unmarked.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	details := map[string]any{"op": op}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		details["status"] = stripeErr.HTTPStatusCode
		details["code"] = string(stripeErr.Code)
		details["request_id"] = stripeErr.RequestID
		switch {
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return ierr.WithError(err).WithDetails(details).WithHint("stripe rate limit").Mark(ierr.ErrTransient)
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return ierr.WithError(err).WithDetails(details).Mark(ierr.ErrTransient)
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			return ierr.WithError(err).WithDetails(details).Mark(ierr.ErrNotFound)
		default:
			return ierr.WithError(err).WithDetails(details).Mark(ierr.ErrSystem)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ierr.WithError(err).WithDetails(details).WithHint("connection error").Mark(ierr.ErrTransient)
	}
	return err
}

// IsRetryable is the retry predicate for every Stripe call site.
func IsRetryable(err error) bool {
	return ierr.IsTransient(err)
}
