// Package server implements the HTTP and websocket bridge to a receiver.
//
// The bridge exposes the live front panel and the command operations over a
// small JSON API, streams display changes to websocket subscribers and
// serves Prometheus metrics.
//
// # Routes
//
//	GET  /healthz                  liveness
//	GET  /version                  build version
//	GET  /metrics                  Prometheus metrics (when enabled)
//	GET  /api/display              current panel
//	GET  /api/commands             command names and source functions
//	POST /api/commands/:name       send one named command
//	POST /api/source/:function     select a source
//	POST /api/record/:function     select a record output
//	POST /api/label                {"function": "cd", "label": "DISC"}
//	GET  /ws                       display updates as JSON
//
// Command endpoints are rate limited. Invalid arguments answer 400, a missing
// or failing serial channel 503.
//
// # WebSocket Messages
//
// A client first receives a "snapshot" message, then an "update" message for
// every change of the panel:
//
//	{"type":"update","display":{"source":" CD  ","record":"TAPE1",...},"at":"..."}
//
// Slow clients lose updates rather than stall the read loop.
package server
