// Package server wires the relay handler into an HTTP server and adds the
// monitoring endpoints (/health, /stats, /config, /metrics), request IDs,
// CORS and per-endpoint metrics.
package server
