// Package retry provides the two waiting strategies used against the
// hypervisor and object storage.
//
// [WithExponentialBackoff] retries a failing operation with growing delays
// and a bounded number of attempts. [Poll] re-evaluates a condition at a
// fixed interval, optionally bounded by a timeout, and is how readiness
// waits are expressed. Both stop immediately on errors wrapped with
// [Fatal] and on context cancellation.
package retry
