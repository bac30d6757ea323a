// Package server provides the devicewatch HTTP API.
//
// Routes:
//
//   - POST /api/auth/register, POST /api/auth/login: account management
//   - GET /api/devices, POST /api/devices/{id}/ping: device inventory and on-demand checks
//   - GET /api/routers, /api/printers, /api/boxes: category listings
//   - POST /api/printers/{id}/online, POST /api/boxes/{id}/power-status: flag updates
//   - GET /api/events: Server-Sent Events stream of status changes
//   - GET /api/ws: WebSocket stream of status changes
//   - GET /healthz: liveness
//
// Every /api route except the auth endpoints requires a bearer token. The
// two push streams also accept it as a "token" query parameter.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
