// Package server exposes the relay over HTTP.
//
// The public listener (gin) serves the websocket endpoint, the REST position
// endpoint and a liveness check. The ops listener serves /health with
// component status, Prometheus /metrics and /debug/players.
package server
