// Package server provides HTTP routing, middleware, and the local diagnostics endpoints.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
// [RequestID] and [RequestLogger] are the middleware the diagnostics router installs.
//
// # Diagnostics
//
// [NewDiagnosticsRouter] mounts two routes:
//
//	GET /healthz  session, realtime channel and upload counts as JSON
//	GET /metrics  prometheus collectors registered by the realtime and tasks packages
//
// The server is started by `vidx serve`, which also keeps the realtime channel and the upload
// engine running so that the reported state is live.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
