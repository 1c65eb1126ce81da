// Package api hosts the HTTP server, middleware, and REST handlers:
//   - POST /v1/admin/harvest triggers a harvest run (API key when auth is enabled).
//   - GET /v1/outbreaks and /v1/outbreaks/{id} read stored bulletins.
//   - GET /healthz and /readyz for probes; GET /metrics for Prometheus.
package api
