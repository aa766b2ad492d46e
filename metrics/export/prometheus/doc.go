// Package prometheus renders authority counters in Prometheus text exposition
// format.
//
// Counter names are prefixed lmsauth_ and end in _total; the single histogram
// is lmsauth_authenticate_latency_seconds. Nothing is registered globally;
// callers mount Handler themselves.
package prometheus
