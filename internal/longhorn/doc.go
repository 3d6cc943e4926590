// Package longhorn drives a Longhorn installation through
// inspect, backup, apply, wait and verify.
//
// The Orchestrator reads declared and running versions, detects version
// conflicts between them, exports a restorable backup bundle before any
// mutation, applies a release manifest and polls pod readiness until the
// manager and CSI plugin converge. Bundles can be re-applied with Rollback.
//
// All cluster access goes through the ClusterClient interface so the
// orchestration logic can be exercised against in-memory fakes.
package longhorn
