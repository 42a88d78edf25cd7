// Package httputil provides retry helpers for remote registry calls.
//
// # Retry
//
// [Retry] and [Policy.Do] re-run an operation on transient failures. Only
// errors wrapped in [RetryableError] are retried (network errors and 5xx
// responses); anything else, including 404s, returns immediately:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    return client.Get(ctx, url, &resp)
//	})
//
// Delays double after each attempt up to the policy's MaxDelay. The wait
// honours ctx, so a caller deadline bounds the whole retry loop and the
// returned error is ctx.Err().
package httputil
