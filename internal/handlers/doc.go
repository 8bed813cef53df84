// Package handlers provides the HTTP handlers of the operations server.
//
// It includes handlers for:
//   - Health, liveness and readiness probes backed by the sync daemon
//   - Version and Prometheus metrics
//   - Triggering a sync (POST /api/sync)
//   - Timeline statistics and the sync run journal
package handlers
