// Package metrics records lhctl operation metrics in a private Prometheus
// registry and pushes them to a Pushgateway when one is configured.
//
// lhctl is a short-lived process, so metrics are pushed once at the end of
// a command instead of being scraped.
package metrics
