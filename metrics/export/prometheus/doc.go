// Package prometheus renders engine counters and the token validation
// latency histogram in the Prometheus text exposition format. The service
// mounts Handler at GET /metrics; nothing is registered globally.
package prometheus
