// Package api implements the HTTP REST API and WebSocket server for the Kasa bridge.
//
// This package provides:
//   - Submission endpoints that queue device operations on the dispatcher
//   - Read endpoints for the device registry, snapshot history and job log
//   - A WebSocket hub that delivers job responses and state changes
//   - JWT (HS256) authentication for everything except /health and /metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Submissions
//
// Every submission returns 202 Accepted once the job is queued:
//
//	{"request_id": 7, "channel": "panel-1", "job_id": "...", "status": "accepted"}
//
// The outcome arrives later as a response event on the WebSocket channel
// named in the request (and on MQTT when the bridge is running). A request
// that fails validation gets 400; a stopped dispatcher gets 503.
//
// # WebSocket
//
// Clients connect to /api/v1/ws with the JWT in the "token" query parameter
// or the Authorization header, then send subscribe frames naming the
// response channels they want. The "device.state_changed" channel carries
// snapshots refreshed by completed jobs.
package api
