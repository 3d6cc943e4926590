// Package async provides utilities for parallel task execution with
// per-task result collection.
//
// [RunParallel] executes independent operations concurrently and reports the
// outcome of every task, so a single failure never hides the others. Backup
// exports use it to capture artifacts side by side.
package async
