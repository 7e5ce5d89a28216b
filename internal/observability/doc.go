// Package observability provides event logging, metrics calculation, and
// SLA alerting for opsboard. It uses structured JSON Lines (JSONL) for
// event persistence and derives metrics on-demand from the event log.
package observability
