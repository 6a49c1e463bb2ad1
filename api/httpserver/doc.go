// Package httpserver provides the HTTP server shared by the coordinator and
// provider binaries.
//
// BaseServer wires a chi router with request ids, panic recovery and
// structured request logging, mounts the routes of every RouteRegistrar and
// adds the health endpoints:
//
//   - /livez: the process is running
//   - /readyz: the server accepts traffic; not draining and ReadinessCheck,
//     if configured, succeeds (the coordinator pings its store)
//   - /drain and /undrain: toggle readiness ahead of a shutdown
//
// Prometheus metrics are served on a separate listener when MetricsAddr is
// set, pprof is mounted under /debug when EnablePprof is true.
//
// Handlers use WriteJSON, WriteError and DecodeJSON so that every component
// answers with the same JSON error shape:
//
//	{"code": 404, "message": "collaboration not found"}
//
// Usage:
//
//	srv, err := httpserver.New(cfg, services.NewCoordinatorAPI(orch, log))
//	if err != nil {
//	    return err
//	}
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
