// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable max retries,
// initial delay, and maximum delay. It is used for object storage transfers
// where individual requests may fail transiently. Errors wrapped with [Fatal]
// stop the loop immediately.
package retry
